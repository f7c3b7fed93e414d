package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"ar-ledger/internal/common/dates"
	apperrors "ar-ledger/internal/common/errors"
	"ar-ledger/internal/models"
	"ar-ledger/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, *Stores) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewStores(db)
}

var eventCols = []string{"seq", "id", "ar_id", "kind", "occurred_at", "actor_kind", "actor_user_id", "schema_version", "payload"}

var arCols = []string{"id", "billable_entity_id", "customer_name", "zone", "amount", "currency", "status",
	"invoice_date", "due_date", "paid_date", "assigned_sales_id", "customer_address", "manager_address",
	"created_at", "last_event_id", "last_event_at", "event_count", "version", "billing_day"}

var alertCols = []string{"id", "ar_id", "type", "role", "priority", "address", "template", "data", "status",
	"attempts", "max_attempts", "scheduled_for", "sent_at", "failed_at", "last_error", "receipt_id",
	"dedup_key", "trigger_event_id", "created_at", "updated_at"}

func sampleEvent() models.Event {
	return models.NewEvent("evt-1", "ar-1", time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), models.SystemActor,
		models.StatusChanged{From: models.StatusPending, To: models.StatusOverdue})
}

// ==========================
// Schema
// ==========================

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range Schema {
		mock.ExpectExec("CREATE|ALTER").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Events
// ==========================

func TestEventStore_Append(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(m sqlmock.Sqlmock)
		wantSeq int64
		wantErr error
	}{
		{
			name: "appended",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("INSERT INTO ar_events").
					WithArgs("evt-1", "ar-1", "STATUS_CHANGED", sqlmock.AnyArg(), "SYSTEM", sqlmock.AnyArg(), 1, sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(42)))
			},
			wantSeq: 42,
		},
		{
			name: "duplicate identity",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("INSERT INTO ar_events").WillReturnRows(sqlmock.NewRows([]string{"seq"}))
			},
			wantErr: store.ErrDuplicate,
		},
		{
			name: "storage down",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("INSERT INTO ar_events").WillReturnError(errors.New("connection refused"))
			},
			wantErr: apperrors.ErrStorageUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, stores := newMock(t)
			tt.setup(mock)

			seq, err := stores.Events.Append(context.Background(), sampleEvent())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantSeq, seq)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventStore_ListByAR_DecodesPayloads(t *testing.T) {
	mock, stores := newMock(t)
	at := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .* FROM ar_events\\s+WHERE ar_id = \\$1\\s+ORDER BY occurred_at, seq").
		WithArgs("ar-1").
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow(int64(1), "evt-1", "ar-1", "STATUS_CHANGED", at, "MANAGER", "u-7", 1, []byte(`{"from":"PENDING","to":"OVERDUE"}`)).
			AddRow(int64(2), "evt-2", "ar-1", "SOMETHING_NEW", at, "SYSTEM", nil, 2, []byte(`{"x":1}`)))

	events, err := stores.Events.ListByAR(context.Background(), "ar-1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	sc, ok := events[0].Payload.(models.StatusChanged)
	require.True(t, ok)
	assert.Equal(t, models.StatusOverdue, sc.To)
	assert.Equal(t, "u-7", events[0].Actor.UserID)

	unknown, ok := events[1].Payload.(models.Unknown)
	require.True(t, ok)
	assert.JSONEq(t, `{"x":1}`, string(unknown.Raw))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventStore_ListAfter_UsesKeyset(t *testing.T) {
	mock, stores := newMock(t)
	cursor := store.Cursor{At: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Seq: 10}

	mock.ExpectQuery("WHERE \\(occurred_at, seq\\) > \\(\\$1, \\$2\\)").
		WithArgs(cursor.At, int64(10), 500).
		WillReturnRows(sqlmock.NewRows(eventCols))

	events, err := stores.Events.ListAfter(context.Background(), cursor, 500)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Snapshots
// ==========================

func TestSnapshotStore_UpdateConflict(t *testing.T) {
	mock, stores := newMock(t)
	ar := &models.AR{ID: "ar-1", Amount: models.MustMoney("10", "USD"), Version: 3}

	mock.ExpectExec("UPDATE ar_snapshots SET .* WHERE id = \\$1 AND version = \\$20").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := stores.Snapshots.Update(context.Background(), ar, 2)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotStore_InsertExistingIsConflict(t *testing.T) {
	mock, stores := newMock(t)
	ar := &models.AR{ID: "ar-1", Amount: models.MustMoney("10", "USD"), Version: 1}

	mock.ExpectExec("INSERT INTO ar_snapshots .* ON CONFLICT \\(id\\) DO NOTHING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := stores.Snapshots.Insert(context.Background(), ar)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
}

func TestSnapshotStore_GetScansRow(t *testing.T) {
	mock, stores := newMock(t)
	created := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .* FROM ar_snapshots WHERE id = \\$1").
		WithArgs("ar-1").
		WillReturnRows(sqlmock.NewRows(arCols).AddRow(
			"ar-1", "house-9", "Acme", "north", "1000.00", "USD", "PENDING",
			dates.MustParse("2025-01-01"), dates.MustParse("2025-01-31"), nil, "sales-1",
			[]byte(`{"channel":"chat","value":"room-1"}`), nil,
			created, "evt-1", created, 1, int64(1), 0,
		))

	ar, err := stores.Snapshots.Get(context.Background(), "ar-1")
	require.NoError(t, err)

	assert.True(t, ar.Amount.Equal(models.MustMoney("1000", "USD")))
	assert.Equal(t, models.StatusPending, ar.Status)
	assert.Equal(t, "2025-01-31", dates.Format(ar.DueDate))
	assert.Equal(t, 31, ar.BillingDay, "rows written before billing_day existed fall back to the due day")
	assert.Nil(t, ar.PaidDate)
	require.NotNil(t, ar.AssignedSalesID)
	assert.Equal(t, "sales-1", *ar.AssignedSalesID)
	require.NotNil(t, ar.CustomerAddress)
	assert.Equal(t, "room-1", ar.CustomerAddress.Value)
	assert.Nil(t, ar.ManagerAddress)
}

func TestSnapshotStore_GetMissing(t *testing.T) {
	mock, stores := newMock(t)
	mock.ExpectQuery("SELECT .* FROM ar_snapshots").WillReturnRows(sqlmock.NewRows(arCols))

	_, err := stores.Snapshots.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// amountArg matches a bound amount by its exact decimal text.
type amountArg string

func (a amountArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && s == string(a)
}

func TestSnapshotStore_SubCentAmountsKeepPrecision(t *testing.T) {
	for _, stmt := range Schema {
		assert.NotContains(t, stmt, "NUMERIC(", "amount columns must not impose a scale")
	}

	mock, stores := newMock(t)
	ar := &models.AR{ID: "ar-1", Amount: models.MustMoney("1000.125", "USD"), Version: 1,
		InvoiceDate: dates.MustParse("2025-01-01"), DueDate: dates.MustParse("2025-01-31"), BillingDay: 31}

	args := make([]driver.Value, len(arCols))
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[4] = amountArg("1000.125")
	mock.ExpectExec("INSERT INTO ar_snapshots").WithArgs(args...).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, stores.Snapshots.Insert(context.Background(), ar))

	created := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT .* FROM ar_snapshots WHERE id = \\$1").
		WillReturnRows(sqlmock.NewRows(arCols).AddRow(
			"ar-1", "house-9", "Acme", "north", "1000.125", "USD", "PENDING",
			dates.MustParse("2025-01-01"), dates.MustParse("2025-01-31"), nil, nil, nil, nil,
			created, "evt-1", created, 1, int64(1), 31,
		))

	got, err := stores.Snapshots.Get(context.Background(), "ar-1")
	require.NoError(t, err)
	assert.Equal(t, "1000.125", got.Amount.Amount.String())
	assert.True(t, got.Amount.Equal(ar.Amount))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotStore_ListOverdueFiltersOpenStatuses(t *testing.T) {
	mock, stores := newMock(t)
	mock.ExpectQuery("WHERE status IN \\('PENDING', 'OVERDUE'\\) AND due_date < \\$1 ORDER BY due_date, id").
		WithArgs(dates.MustParse("2025-01-11")).
		WillReturnRows(sqlmock.NewRows(arCols))

	_, err := stores.Snapshots.ListOverdue(context.Background(), time.Date(2025, 1, 11, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotStore_ListActiveBillableEntities(t *testing.T) {
	mock, stores := newMock(t)
	mock.ExpectQuery("SELECT DISTINCT billable_entity_id").
		WillReturnRows(sqlmock.NewRows([]string{"billable_entity_id"}).AddRow("h-1").AddRow("h-2"))

	ids, err := stores.Snapshots.ListActiveBillableEntities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"h-1", "h-2"}, ids)
}

// ==========================
// Alerts
// ==========================

func sampleAlert() *models.Alert {
	key := "ar-1:DUE:CUSTOMER:2025-01-31"
	now := time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC)
	return &models.Alert{
		ID: "al-1", ARID: "ar-1", Type: models.AlertDue, Role: models.RoleCustomer, Priority: 2,
		Address: models.Address{Channel: "chat", Value: "room-1"}, Template: "due",
		Status: models.AlertQueuedStatus, MaxAttempts: 3, ScheduledFor: now,
		DedupKey: &key, CreatedAt: now, UpdatedAt: now,
	}
}

func TestAlertStore_InsertDuplicate(t *testing.T) {
	mock, stores := newMock(t)
	mock.ExpectExec("INSERT INTO ar_alerts").WillReturnError(&pq.Error{Code: "23505"})

	err := stores.Alerts.Insert(context.Background(), sampleAlert())
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestAlertStore_ListDueOrdering(t *testing.T) {
	mock, stores := newMock(t)
	now := time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE status = 'QUEUED' AND scheduled_for <= \\$1\\s+ORDER BY priority DESC, scheduled_for ASC\\s+LIMIT \\$2").
		WithArgs(now, 50).
		WillReturnRows(sqlmock.NewRows(alertCols).AddRow(
			"al-1", "ar-1", "ESCALATION", "MANAGER", 4, []byte(`{"channel":"chat","value":"mgr"}`), "escalation",
			[]byte(`{"days":"5"}`), "QUEUED", 0, 3, now, nil, nil, nil, nil,
			"ar-1:ESCALATION:MANAGER:2025-01-26:d5", "evt-9", now, now,
		))

	due, err := stores.Alerts.ListDue(context.Background(), now, 50)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.AlertEscalation, due[0].Type)
	assert.Equal(t, "5", due[0].Data["days"])
	require.NotNil(t, due[0].DedupKey)
	assert.Nil(t, due[0].SentAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertStore_ListStale(t *testing.T) {
	mock, stores := newMock(t)
	claimed := time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC)
	cutoff := claimed.Add(time.Hour)

	mock.ExpectQuery("WHERE status = 'PROCESSING' AND updated_at < \\$1\\s+ORDER BY updated_at ASC\\s+LIMIT \\$2").
		WithArgs(cutoff, 10).
		WillReturnRows(sqlmock.NewRows(alertCols).AddRow(
			"al-1", "ar-1", "DUE", "CUSTOMER", 2, []byte(`{"channel":"chat","value":"room-1"}`), "due",
			nil, "PROCESSING", 1, 3, claimed, nil, nil, nil, nil,
			nil, "evt-3", claimed, claimed,
		))

	stale, err := stores.Alerts.ListStale(context.Background(), cutoff, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, models.AlertProcessingStatus, stale[0].Status)
	assert.Equal(t, 1, stale[0].Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertStore_TransitionIsConditional(t *testing.T) {
	mock, stores := newMock(t)
	alert := sampleAlert()
	alert.Status = models.AlertProcessingStatus
	alert.Attempts = 1

	mock.ExpectExec("UPDATE ar_alerts .* WHERE id = \\$1 AND status = \\$10").
		WithArgs("al-1", "PROCESSING", 1, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "QUEUED").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := stores.Alerts.Transition(context.Background(), alert, models.AlertQueuedStatus)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
