// internal/workers/sweep/lock.go
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ar-ledger/internal/common/dates"
	apperrors "ar-ledger/internal/common/errors"
	"ar-ledger/internal/ids"

	"github.com/redis/go-redis/v9"
)

// Locker keeps concurrent processes from sweeping the same day twice.
type Locker interface {
	// Acquire returns a token when the caller now owns the day.
	Acquire(ctx context.Context, day time.Time) (token string, ok bool, err error)
	Release(ctx context.Context, day time.Time, token string) error
	// Completed reports whether some process finished the day.
	Completed(ctx context.Context, day time.Time) (bool, error)
	MarkCompleted(ctx context.Context, day time.Time) error
}

const (
	keyPrefix     = "ar-ledger:sweep:"
	completedTTL  = 48 * time.Hour
	completedMark = "done"
)

// releaseScript deletes the lock only while it still holds our token, so a
// run that outlived its TTL cannot free a lock another process now owns.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLock struct {
	client redis.Cmdable
	ttl    time.Duration
	token  func() string
}

type LockOption func(*RedisLock)

func WithTokenGenerator(fn func() string) LockOption {
	return func(l *RedisLock) { l.token = fn }
}

func NewRedisLock(client redis.Cmdable, ttl time.Duration, opts ...LockOption) *RedisLock {
	l := &RedisLock{client: client, ttl: ttl, token: ids.New}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func lockKey(day time.Time) string {
	return keyPrefix + "lock:" + dates.Format(day)
}

func doneKey(day time.Time) string {
	return keyPrefix + "done:" + dates.Format(day)
}

func (l *RedisLock) Acquire(ctx context.Context, day time.Time) (string, bool, error) {
	token := l.token()
	ok, err := l.client.SetNX(ctx, lockKey(day), token, l.ttl).Result()
	if err != nil {
		return "", false, apperrors.NewStorageUnavailableError("acquire sweep lock", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLock) Release(ctx context.Context, day time.Time, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{lockKey(day)}, token).Err(); err != nil {
		return apperrors.NewStorageUnavailableError("release sweep lock", err)
	}
	return nil
}

func (l *RedisLock) Completed(ctx context.Context, day time.Time) (bool, error) {
	n, err := l.client.Exists(ctx, doneKey(day)).Result()
	if err != nil {
		return false, apperrors.NewStorageUnavailableError("read sweep marker", err)
	}
	return n > 0, nil
}

func (l *RedisLock) MarkCompleted(ctx context.Context, day time.Time) error {
	if err := l.client.Set(ctx, doneKey(day), completedMark, completedTTL).Err(); err != nil {
		return apperrors.NewStorageUnavailableError("write sweep marker", err)
	}
	return nil
}

// LocalLock is the single-process Locker used when no Redis is configured.
type LocalLock struct {
	mu   sync.Mutex
	held map[string]string
	done map[string]bool
	seq  int
}

func NewLocalLock() *LocalLock {
	return &LocalLock{held: map[string]string{}, done: map[string]bool{}}
}

func (l *LocalLock) Acquire(_ context.Context, day time.Time) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := dates.Format(day)
	if _, taken := l.held[key]; taken {
		return "", false, nil
	}
	l.seq++
	token := fmt.Sprintf("local-%d", l.seq)
	l.held[key] = token
	return token, true, nil
}

func (l *LocalLock) Release(_ context.Context, day time.Time, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := dates.Format(day)
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func (l *LocalLock) Completed(_ context.Context, day time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done[dates.Format(day)], nil
}

func (l *LocalLock) MarkCompleted(_ context.Context, day time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.done[dates.Format(day)] = true
	return nil
}
