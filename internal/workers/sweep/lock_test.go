// internal/workers/sweep/lock_test.go
package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"ar-ledger/internal/common/dates"
	apperrors "ar-ledger/internal/common/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sweepDay = dates.MustParse("2025-01-31")

func newMiniredisLock(t *testing.T, tokens ...string) (*RedisLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	i := 0
	lock := NewRedisLock(client, 30*time.Minute, WithTokenGenerator(func() string {
		tok := tokens[i%len(tokens)]
		i++
		return tok
	}))
	return lock, mr
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	lock, mr := newMiniredisLock(t, "tok-a", "tok-b")

	token, ok, err := lock.Acquire(ctx, sweepDay)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok-a", token)
	assert.Equal(t, 30*time.Minute, mr.TTL(lockKey(sweepDay)))

	_, ok, err = lock.Acquire(ctx, sweepDay)
	require.NoError(t, err)
	assert.False(t, ok)

	// A stale token must not free the lock.
	require.NoError(t, lock.Release(ctx, sweepDay, "tok-b"))
	assert.True(t, mr.Exists(lockKey(sweepDay)))

	require.NoError(t, lock.Release(ctx, sweepDay, token))
	assert.False(t, mr.Exists(lockKey(sweepDay)))
}

func TestRedisLock_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	lock, mr := newMiniredisLock(t, "tok-a", "tok-b")

	_, ok, err := lock.Acquire(ctx, sweepDay)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Minute)
	token, ok, err := lock.Acquire(ctx, sweepDay)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-b", token)
}

func TestRedisLock_CompletedMarker(t *testing.T) {
	ctx := context.Background()
	lock, mr := newMiniredisLock(t, "tok-a")

	done, err := lock.Completed(ctx, sweepDay)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, lock.MarkCompleted(ctx, sweepDay))
	done, err = lock.Completed(ctx, sweepDay)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, completedTTL, mr.TTL(doneKey(sweepDay)))

	other, err := lock.Completed(ctx, dates.AddDays(sweepDay, 1))
	require.NoError(t, err)
	assert.False(t, other)
}

func TestRedisLock_ErrorsAreStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	lock := NewRedisLock(db, time.Minute, WithTokenGenerator(func() string { return "tok" }))

	mock.ExpectSetNX(lockKey(sweepDay), "tok", time.Minute).SetErr(errors.New("connection refused"))
	_, ok, err := lock.Acquire(ctx, sweepDay)
	assert.False(t, ok)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)

	mock.ExpectExists(doneKey(sweepDay)).SetErr(errors.New("connection refused"))
	_, err = lock.Completed(ctx, sweepDay)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)

	mock.ExpectSet(doneKey(sweepDay), completedMark, completedTTL).SetErr(errors.New("connection refused"))
	assert.ErrorIs(t, lock.MarkCompleted(ctx, sweepDay), apperrors.ErrStorageUnavailable)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLocalLock(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalLock()

	token, ok, err := lock.Acquire(ctx, sweepDay)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = lock.Acquire(ctx, sweepDay)
	assert.False(t, ok)

	_, ok, _ = lock.Acquire(ctx, dates.AddDays(sweepDay, 1))
	assert.True(t, ok)

	require.NoError(t, lock.Release(ctx, sweepDay, "someone-else"))
	_, ok, _ = lock.Acquire(ctx, sweepDay)
	assert.False(t, ok)

	require.NoError(t, lock.Release(ctx, sweepDay, token))
	_, ok, _ = lock.Acquire(ctx, sweepDay)
	assert.True(t, ok)
}
