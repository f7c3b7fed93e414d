package commands

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ar-ledger/internal/common/dates"
	apperrors "ar-ledger/internal/common/errors"
	"ar-ledger/internal/common/logger"
	"ar-ledger/internal/eventlog"
	"ar-ledger/internal/models"
	"ar-ledger/internal/store"
	"ar-ledger/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSnapshots wraps the in-memory store so single methods can be overridden.
type mockSnapshots struct {
	*memory.SnapshotStore
	UpdateFunc                   func(ctx context.Context, ar *models.AR, expectedVersion int64) error
	FindByBillableAndDueDateFunc func(ctx context.Context, billableEntityID string, dueDate time.Time) (*models.AR, error)
}

func (m *mockSnapshots) Update(ctx context.Context, ar *models.AR, expectedVersion int64) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, ar, expectedVersion)
	}
	return m.SnapshotStore.Update(ctx, ar, expectedVersion)
}

func (m *mockSnapshots) FindByBillableAndDueDate(ctx context.Context, billableEntityID string, dueDate time.Time) (*models.AR, error) {
	if m.FindByBillableAndDueDateFunc != nil {
		return m.FindByBillableAndDueDateFunc(ctx, billableEntityID, dueDate)
	}
	return m.SnapshotStore.FindByBillableAndDueDate(ctx, billableEntityID, dueDate)
}

var (
	now     = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	manager = models.Actor{Kind: models.ActorManager, UserID: "m-1"}
	sales   = models.Actor{Kind: models.ActorSales, UserID: "s-1"}
)

type fixture struct {
	svc       *Service
	events    *memory.EventStore
	snapshots *mockSnapshots
	clock     *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	events := memory.NewEventStore()
	snaps := &mockSnapshots{SnapshotStore: memory.NewSnapshotStore()}
	clock := now
	seq := 0
	svc := NewService(eventlog.New(events, logger.NewNoOpLogger()), snaps, logger.NewTestLogger(t),
		WithClock(func() time.Time { return clock }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	)
	return &fixture{svc: svc, events: events, snapshots: snaps, clock: &clock}
}

func createReq() CreateRequest {
	return CreateRequest{
		BillableEntityID: "house-1",
		CustomerName:     "Acme",
		Zone:             "north",
		Amount:           models.MustMoney("1000", "USD"),
		InvoiceDate:      dates.MustParse("2025-01-01"),
		DueDate:          dates.MustParse("2025-01-31"),
		CustomerAddress:  &models.Address{Channel: "email", Value: "billing@acme.test"},
		ManagerAddress:   &models.Address{Channel: "email", Value: "manager@ledger.test"},
		Actor:            manager,
	}
}

func (f *fixture) create(t *testing.T) *models.AR {
	t.Helper()
	ar, err := f.svc.Create(context.Background(), createReq())
	require.NoError(t, err)
	return ar
}

// ==========================
// Create
// ==========================

func TestCreate_StartsPendingAtVersionOne(t *testing.T) {
	f := newFixture(t)

	ar := f.create(t)

	assert.Equal(t, "id-1", ar.ID)
	assert.Equal(t, models.StatusPending, ar.Status)
	assert.Equal(t, int64(1), ar.Version)
	assert.Equal(t, 1, ar.EventCount)
	assert.Equal(t, "2025-01-31", dates.Format(ar.DueDate))

	stored, err := f.snapshots.Get(context.Background(), ar.ID)
	require.NoError(t, err)
	assert.Equal(t, ar, stored)
	assert.Equal(t, 1, f.events.Len())
}

func TestCreate_SuppliedIDIsIdempotent(t *testing.T) {
	f := newFixture(t)
	req := createReq()
	req.ID = "ar-fixed"

	first, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	second, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.events.Len())
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *CreateRequest)
	}{
		{"blank customer", func(r *CreateRequest) { r.CustomerName = "  " }},
		{"missing billable entity", func(r *CreateRequest) { r.BillableEntityID = "" }},
		{"zero amount", func(r *CreateRequest) { r.Amount = models.MustMoney("0", "USD") }},
		{"negative amount", func(r *CreateRequest) { r.Amount = models.MustMoney("-10", "USD") }},
		{"lowercase currency", func(r *CreateRequest) { r.Amount = models.MustMoney("10", "usd") }},
		{"due before invoice", func(r *CreateRequest) { r.DueDate = dates.MustParse("2024-12-31") }},
		{"missing due date", func(r *CreateRequest) { r.DueDate = time.Time{} }},
		{"unknown actor", func(r *CreateRequest) { r.Actor = models.Actor{Kind: "ROBOT"} }},
		{"empty address value", func(r *CreateRequest) { r.CustomerAddress = &models.Address{Channel: "email"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := createReq()
			tt.mutate(&req)

			_, err := f.svc.Create(context.Background(), req)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Equal(t, 0, f.events.Len())
		})
	}
}

// ==========================
// ChangeStatus
// ==========================

func TestChangeStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := f.create(t)

	updated, err := f.svc.ChangeStatus(ctx, ChangeStatusRequest{ARID: ar.ID, Status: models.StatusOverdue, Actor: models.SystemActor})
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, updated.Status)
	assert.Equal(t, int64(2), updated.Version)

	t.Run("same status is a no-op", func(t *testing.T) {
		again, err := f.svc.ChangeStatus(ctx, ChangeStatusRequest{ARID: ar.ID, Status: models.StatusOverdue, Actor: models.SystemActor})
		require.NoError(t, err)
		assert.Equal(t, int64(2), again.Version)
		assert.Equal(t, 2, f.events.Len())
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := f.svc.ChangeStatus(ctx, ChangeStatusRequest{ARID: ar.ID, Status: "LOST", Actor: manager})
		assert.ErrorIs(t, err, apperrors.ErrInvalidStatus)
	})

	t.Run("unknown ar", func(t *testing.T) {
		_, err := f.svc.ChangeStatus(ctx, ChangeStatusRequest{ARID: "missing", Status: models.StatusPaid, Actor: manager})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestChangeStatus_RepeatedEventIDIsAbsorbed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := f.create(t)
	req := ChangeStatusRequest{ARID: ar.ID, Status: models.StatusOverdue, Actor: models.SystemActor, EventID: "sweep-evt"}

	_, err := f.svc.ChangeStatus(ctx, req)
	require.NoError(t, err)

	// Simulate a snapshot that missed the first write.
	require.NoError(t, f.snapshots.Put(ctx, ar))
	healed, err := f.svc.ChangeStatus(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, models.StatusOverdue, healed.Status)
	assert.Equal(t, int64(2), healed.Version)
	assert.Equal(t, 2, f.events.Len())
}

// ==========================
// LogFollowUp
// ==========================

func TestLogFollowUp_OnlyBookkeeping(t *testing.T) {
	f := newFixture(t)
	ar := f.create(t)
	next := dates.MustParse("2025-01-20")

	updated, err := f.svc.LogFollowUp(context.Background(), LogFollowUpRequest{
		ARID: ar.ID, Notes: "left voicemail", NextFollowUpOn: &next, Actor: sales,
	})
	require.NoError(t, err)

	assert.Equal(t, ar.Status, updated.Status)
	assert.Equal(t, ar.DueDate, updated.DueDate)
	assert.Equal(t, int64(2), updated.Version)

	_, err = f.svc.LogFollowUp(context.Background(), LogFollowUpRequest{ARID: ar.ID, Notes: "", Actor: sales})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

// ==========================
// VerifyPayment
// ==========================

func payment(arID string) VerifyPaymentRequest {
	return VerifyPaymentRequest{
		ARID:       arID,
		PaidAmount: models.MustMoney("1000", "USD"),
		PaidDate:   dates.MustParse("2025-01-09"),
		Reference:  "TX-1",
		Actor:      manager,
	}
}

func TestVerifyPayment_CreatesNextPeriod(t *testing.T) {
	f := newFixture(t)
	ar := f.create(t)

	res, err := f.svc.VerifyPayment(context.Background(), payment(ar.ID))
	require.NoError(t, err)
	require.NoError(t, res.NextARErr)

	assert.Equal(t, models.StatusPaid, res.AR.Status)
	require.NotNil(t, res.AR.PaidDate)
	assert.Equal(t, "2025-01-09", dates.Format(*res.AR.PaidDate))

	next := res.NextAR
	require.NotNil(t, next)
	assert.Equal(t, "2025-02-28", dates.Format(next.DueDate))
	assert.Equal(t, "2025-02-01", dates.Format(next.InvoiceDate))
	assert.Equal(t, models.StatusPending, next.Status)
	assert.True(t, next.Amount.Equal(ar.Amount))
	assert.Equal(t, ar.CustomerAddress, next.CustomerAddress)

	events, err := f.svc.History(context.Background(), next.ID)
	require.NoError(t, err)
	created := events[0].Payload.(models.ARCreated)
	require.NotNil(t, created.PreviousARID)
	assert.Equal(t, ar.ID, *created.PreviousARID)
	assert.Equal(t, "payment", created.Source)
}

func TestVerifyPayment_NextPeriodKeepsBillingDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := createReq()
	req.InvoiceDate = dates.MustParse("2025-02-01")
	req.DueDate = dates.MustParse("2025-02-28")
	req.BillingDay = 31
	feb, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 31, feb.BillingDay)

	res, err := f.svc.VerifyPayment(ctx, payment(feb.ID))
	require.NoError(t, err)
	require.NotNil(t, res.NextAR)
	assert.Equal(t, "2025-03-31", dates.Format(res.NextAR.DueDate))
	assert.Equal(t, 31, res.NextAR.BillingDay)

	// Without an explicit billing day the due date's day is used.
	plain := f.create(t)
	assert.Equal(t, plain.DueDate.Day(), plain.BillingDay)
}

func TestVerifyPayment_AlreadyPaid(t *testing.T) {
	f := newFixture(t)
	ar := f.create(t)

	_, err := f.svc.VerifyPayment(context.Background(), payment(ar.ID))
	require.NoError(t, err)
	before := f.events.Len()

	_, err = f.svc.VerifyPayment(context.Background(), payment(ar.ID))
	assert.ErrorIs(t, err, apperrors.ErrAlreadyPaid)
	assert.Equal(t, before, f.events.Len())
}

func TestVerifyPayment_ReusesExistingNextPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := f.create(t)

	nextReq := createReq()
	nextReq.DueDate = dates.MustParse("2025-02-28")
	existing, err := f.svc.Create(ctx, nextReq)
	require.NoError(t, err)

	res, err := f.svc.VerifyPayment(ctx, payment(ar.ID))
	require.NoError(t, err)
	assert.Equal(t, existing.ID, res.NextAR.ID)

	all, err := f.svc.ListByBillableEntity(ctx, "house-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestVerifyPayment_NextPeriodFailureDoesNotFailPayment(t *testing.T) {
	f := newFixture(t)
	ar := f.create(t)
	f.snapshots.FindByBillableAndDueDateFunc = func(context.Context, string, time.Time) (*models.AR, error) {
		return nil, apperrors.NewStorageUnavailableError("find period", errors.New("connection reset"))
	}

	res, err := f.svc.VerifyPayment(context.Background(), payment(ar.ID))
	require.NoError(t, err)

	assert.Equal(t, models.StatusPaid, res.AR.Status)
	assert.Nil(t, res.NextAR)
	assert.ErrorIs(t, res.NextARErr, apperrors.ErrStorageUnavailable)
}

func TestVerifyPayment_Validation(t *testing.T) {
	f := newFixture(t)
	ar := f.create(t)

	req := payment(ar.ID)
	req.PaidAmount = models.MustMoney("0", "USD")
	_, err := f.svc.VerifyPayment(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	req = payment(ar.ID)
	req.PaidDate = time.Time{}
	_, err = f.svc.VerifyPayment(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

// ==========================
// ChangeDueDate
// ==========================

func TestChangeDueDate(t *testing.T) {
	tests := []struct {
		name      string
		due       string
		wantErr   error
		wantEvent bool
	}{
		{"later date", "2025-02-15", nil, true},
		{"unchanged", "2025-01-31", nil, false},
		{"within past limit", "2024-12-20", nil, true},
		{"beyond past limit", "2024-12-01", apperrors.ErrValidation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := createReq()
			req.InvoiceDate = dates.MustParse("2024-12-01")
			ar, err := f.svc.Create(context.Background(), req)
			require.NoError(t, err)

			updated, err := f.svc.ChangeDueDate(context.Background(), ChangeDueDateRequest{
				ARID: ar.ID, DueDate: dates.MustParse(tt.due), Reason: "customer asked", Actor: manager,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 1, f.events.Len())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.due, dates.Format(updated.DueDate))
			if tt.wantEvent {
				assert.Equal(t, 2, f.events.Len())
			} else {
				assert.Equal(t, 1, f.events.Len())
			}
		})
	}
}

// ==========================
// Concurrency and healing
// ==========================

func TestCommand_VersionConflictHealsAndReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := f.create(t)
	f.snapshots.UpdateFunc = func(context.Context, *models.AR, int64) error {
		return store.ErrVersionConflict
	}

	_, err := f.svc.ChangeStatus(ctx, ChangeStatusRequest{ARID: ar.ID, Status: models.StatusOverdue, Actor: manager})
	assert.ErrorIs(t, err, apperrors.ErrConcurrentModification)

	// The event is durable and the snapshot was rebuilt from the log.
	assert.Equal(t, 2, f.events.Len())
	stored, err := f.snapshots.Get(ctx, ar.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestGet_RebuildsMissingSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := f.create(t)
	_, err := f.svc.ChangeStatus(ctx, ChangeStatusRequest{ARID: ar.ID, Status: models.StatusOverdue, Actor: manager})
	require.NoError(t, err)
	require.NoError(t, f.snapshots.Delete(ctx, ar.ID))

	got, err := f.svc.Get(ctx, ar.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, got.Status)
	assert.Equal(t, int64(2), got.Version)

	_, err = f.svc.Get(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// ==========================
// RecordAudit
// ==========================

func queued(arID, id string) models.Event {
	return models.NewEvent(id, arID, now, models.SystemActor, models.AlertQueued{
		AlertID: "al-1", AlertType: models.AlertDue, Role: models.RoleCustomer, Priority: 2, ScheduledFor: now,
	})
}

func TestRecordAudit_FoldsBookkeeping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := f.create(t)

	require.NoError(t, f.svc.RecordAudit(ctx, queued(ar.ID, "audit-1")))
	require.NoError(t, f.svc.RecordAudit(ctx, queued(ar.ID, "audit-1")))

	got, err := f.svc.Get(ctx, ar.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "audit-1", got.LastEventID)
	assert.Equal(t, 2, f.events.Len())
}

func TestRecordAudit_RetriesOnConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := f.create(t)

	calls := 0
	f.snapshots.UpdateFunc = func(ctx context.Context, a *models.AR, expected int64) error {
		calls++
		if calls == 1 {
			return store.ErrVersionConflict
		}
		return f.snapshots.SnapshotStore.Update(ctx, a, expected)
	}

	require.NoError(t, f.svc.RecordAudit(ctx, queued(ar.ID, "audit-1")))
	assert.Equal(t, 2, calls)

	got, err := f.snapshots.Get(ctx, ar.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestRecordAudit_GivesUpAfterRetries(t *testing.T) {
	f := newFixture(t)
	ar := f.create(t)
	f.snapshots.UpdateFunc = func(context.Context, *models.AR, int64) error {
		return store.ErrVersionConflict
	}

	err := f.svc.RecordAudit(context.Background(), queued(ar.ID, "audit-1"))
	assert.ErrorIs(t, err, apperrors.ErrConcurrentModification)
	assert.Equal(t, 2, f.events.Len())
}

// ==========================
// Rebuild / EnsurePeriod / queries
// ==========================

func TestRebuildAll_ReproducesSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t)
	_, err := f.svc.VerifyPayment(ctx, payment(first.ID))
	require.NoError(t, err)
	_, err = f.svc.LogFollowUp(ctx, LogFollowUpRequest{ARID: first.ID, Notes: "thanked", Actor: sales})
	require.NoError(t, err)

	before, err := f.svc.ListAll(ctx, store.Page{})
	require.NoError(t, err)
	require.Len(t, before, 2)
	for _, ar := range before {
		require.NoError(t, f.snapshots.Delete(ctx, ar.ID))
	}

	report, err := f.svc.RebuildAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Subjects)
	assert.Equal(t, 4, report.Events)
	assert.Empty(t, report.Failed)

	after, err := f.svc.ListAll(ctx, store.Page{})
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEnsurePeriod_ClampsAndConverges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := f.create(t)

	due := dates.AddMonthsClamped(ar.DueDate, 3)
	created, isNew, err := f.svc.EnsurePeriod(ctx, ar, due, "horizon")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "2025-04-30", dates.Format(created.DueDate))
	assert.Equal(t, "2025-04-01", dates.Format(created.InvoiceDate))

	again, isNew, err := f.svc.EnsurePeriod(ctx, ar, due, "horizon")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.ID, again.ID)
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ar := f.create(t)

	overdue, err := f.svc.ListOverdue(ctx, dates.MustParse("2025-02-01"))
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, ar.ID, overdue[0].ID)

	none, err := f.svc.ListOverdue(ctx, dates.MustParse("2025-01-31"))
	require.NoError(t, err)
	assert.Empty(t, none)

	byZone, err := f.svc.ListByZone(ctx, "north")
	require.NoError(t, err)
	assert.Len(t, byZone, 1)

	byDue, err := f.svc.ListByDueDateAndStatus(ctx, dates.MustParse("2025-01-31"), models.StatusPending)
	require.NoError(t, err)
	assert.Len(t, byDue, 1)

	_, err = f.svc.ListByStatus(ctx, "LOST")
	assert.ErrorIs(t, err, apperrors.ErrInvalidStatus)

	found, err := f.svc.FindByPeriod(ctx, "house-1", dates.MustParse("2025-01-31"))
	require.NoError(t, err)
	assert.Equal(t, ar.ID, found.ID)

	_, err = f.svc.FindByPeriod(ctx, "house-1", dates.MustParse("2025-03-31"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
