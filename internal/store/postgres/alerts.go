package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ar-ledger/internal/models"
	"ar-ledger/internal/store"
)

const alertColumns = `id, ar_id, type, role, priority, address, template, data, status,
	attempts, max_attempts, scheduled_for, sent_at, failed_at, last_error, receipt_id,
	dedup_key, trigger_event_id, created_at, updated_at`

// AlertStore is the notification intent queue table.
type AlertStore struct {
	db *sql.DB
}

func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

// Insert relies on the primary key and the unique dedup_key column; either
// violation is reported as store.ErrDuplicate.
func (s *AlertStore) Insert(ctx context.Context, a *models.Alert) error {
	address, err := json.Marshal(a.Address)
	if err != nil {
		return fmt.Errorf("encode alert address: %w", err)
	}
	var data []byte
	if a.Data != nil {
		if data, err = json.Marshal(a.Data); err != nil {
			return fmt.Errorf("encode alert data: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ar_alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		a.ID, a.ARID, string(a.Type), string(a.Role), a.Priority, address, a.Template, data,
		string(a.Status), a.Attempts, a.MaxAttempts, a.ScheduledFor.UTC(),
		nullTime(a.SentAt), nullTime(a.FailedAt), nullString(a.LastError), nullString(a.ReceiptID),
		nullString(a.DedupKey), a.TriggerEventID, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return unavailable("insert alert", err)
	}
	return nil
}

func (s *AlertStore) Get(ctx context.Context, id string) (*models.Alert, error) {
	return s.one(ctx, "get alert", `WHERE id = $1`, id)
}

func (s *AlertStore) FindByDedupKey(ctx context.Context, key string) (*models.Alert, error) {
	return s.one(ctx, "find alert by dedup key", `WHERE dedup_key = $1`, key)
}

func (s *AlertStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Alert, error) {
	return s.list(ctx, "list due alerts", `
		WHERE status = 'QUEUED' AND scheduled_for <= $1
		ORDER BY priority DESC, scheduled_for ASC
		LIMIT $2`, now.UTC(), limit)
}

func (s *AlertStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Alert, error) {
	return s.list(ctx, "list stale alerts", `
		WHERE status = 'PROCESSING' AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`, cutoff.UTC(), limit)
}

func (s *AlertStore) ListByAR(ctx context.Context, arID string) ([]*models.Alert, error) {
	return s.list(ctx, "list alerts by ar", `WHERE ar_id = $1 ORDER BY created_at, id`, arID)
}

// Transition is a compare-and-set on the status column.
func (s *AlertStore) Transition(ctx context.Context, a *models.Alert, from models.AlertStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ar_alerts
		SET status = $2, attempts = $3, scheduled_for = $4, sent_at = $5, failed_at = $6,
		    last_error = $7, receipt_id = $8, updated_at = $9
		WHERE id = $1 AND status = $10`,
		a.ID, string(a.Status), a.Attempts, a.ScheduledFor.UTC(),
		nullTime(a.SentAt), nullTime(a.FailedAt), nullString(a.LastError), nullString(a.ReceiptID),
		a.UpdatedAt.UTC(), string(from),
	)
	if err != nil {
		return unavailable("transition alert", err)
	}
	return expectOneRow(res, "transition alert")
}

func (s *AlertStore) one(ctx context.Context, op, where string, args ...interface{}) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM ar_alerts `+where, args...)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(op, err)
	}
	return a, nil
}

func (s *AlertStore) list(ctx context.Context, op, tail string, args ...interface{}) ([]*models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alertColumns+` FROM ar_alerts `+tail, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	out := make([]*models.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a         models.Alert
		typ, role string
		status    string
		address   []byte
		data      []byte
		sentAt    sql.NullTime
		failedAt  sql.NullTime
		lastError sql.NullString
		receiptID sql.NullString
		dedupKey  sql.NullString
		trigger   sql.NullString
	)
	err := row.Scan(&a.ID, &a.ARID, &typ, &role, &a.Priority, &address, &a.Template, &data,
		&status, &a.Attempts, &a.MaxAttempts, &a.ScheduledFor, &sentAt, &failedAt,
		&lastError, &receiptID, &dedupKey, &trigger, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Type = models.AlertType(typ)
	a.Role = models.Role(role)
	a.Status = models.AlertStatus(status)
	a.ScheduledFor = a.ScheduledFor.UTC()
	a.SentAt = timePtr(sentAt)
	a.FailedAt = timePtr(failedAt)
	a.LastError = stringPtr(lastError)
	a.ReceiptID = stringPtr(receiptID)
	a.DedupKey = stringPtr(dedupKey)
	a.TriggerEventID = trigger.String
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()

	if err := json.Unmarshal(address, &a.Address); err != nil {
		return nil, fmt.Errorf("decode alert address: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &a.Data); err != nil {
			return nil, fmt.Errorf("decode alert data: %w", err)
		}
	}
	return &a, nil
}
