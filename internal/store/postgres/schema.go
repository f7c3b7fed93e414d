// Package postgres implements the store contracts on PostgreSQL via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "ar-ledger/internal/common/errors"
	"ar-ledger/internal/models"

	"github.com/lib/pq"
)

// Schema is applied by EnsureSchema; every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS ar_events (
		seq            BIGSERIAL   NOT NULL UNIQUE,
		id             TEXT        PRIMARY KEY,
		ar_id          TEXT        NOT NULL,
		kind           TEXT        NOT NULL,
		occurred_at    TIMESTAMPTZ NOT NULL,
		actor_kind     TEXT        NOT NULL,
		actor_user_id  TEXT,
		schema_version INT         NOT NULL,
		payload        JSONB       NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ar_events_subject_idx ON ar_events (ar_id, occurred_at, seq)`,
	`CREATE INDEX IF NOT EXISTS ar_events_kind_idx ON ar_events (kind, occurred_at)`,
	`CREATE INDEX IF NOT EXISTS ar_events_stream_idx ON ar_events (occurred_at, seq)`,

	`CREATE TABLE IF NOT EXISTS ar_snapshots (
		id                 TEXT          PRIMARY KEY,
		billable_entity_id TEXT          NOT NULL,
		customer_name      TEXT          NOT NULL,
		zone               TEXT          NOT NULL DEFAULT '',
		amount             NUMERIC       NOT NULL,
		currency           TEXT          NOT NULL,
		status             TEXT          NOT NULL,
		invoice_date       DATE          NOT NULL,
		due_date           DATE          NOT NULL,
		paid_date          DATE,
		assigned_sales_id  TEXT,
		customer_address   JSONB,
		manager_address    JSONB,
		created_at         TIMESTAMPTZ   NOT NULL,
		last_event_id      TEXT          NOT NULL,
		last_event_at      TIMESTAMPTZ   NOT NULL,
		event_count        INT           NOT NULL,
		version            BIGINT        NOT NULL,
		billing_day        INT           NOT NULL DEFAULT 0
	)`,
	`ALTER TABLE ar_snapshots ADD COLUMN IF NOT EXISTS billing_day INT NOT NULL DEFAULT 0`,
	`ALTER TABLE ar_snapshots ALTER COLUMN amount TYPE NUMERIC`,
	`CREATE INDEX IF NOT EXISTS ar_snapshots_billable_idx ON ar_snapshots (billable_entity_id, due_date)`,
	`CREATE INDEX IF NOT EXISTS ar_snapshots_status_due_idx ON ar_snapshots (status, due_date)`,
	`CREATE INDEX IF NOT EXISTS ar_snapshots_sales_idx ON ar_snapshots (assigned_sales_id)`,
	`CREATE INDEX IF NOT EXISTS ar_snapshots_zone_idx ON ar_snapshots (zone)`,

	`CREATE TABLE IF NOT EXISTS ar_alerts (
		id               TEXT        PRIMARY KEY,
		ar_id            TEXT        NOT NULL,
		type             TEXT        NOT NULL,
		role             TEXT        NOT NULL,
		priority         INT         NOT NULL,
		address          JSONB       NOT NULL,
		template         TEXT        NOT NULL,
		data             JSONB,
		status           TEXT        NOT NULL,
		attempts         INT         NOT NULL DEFAULT 0,
		max_attempts     INT         NOT NULL,
		scheduled_for    TIMESTAMPTZ NOT NULL,
		sent_at          TIMESTAMPTZ,
		failed_at        TIMESTAMPTZ,
		last_error       TEXT,
		receipt_id       TEXT,
		dedup_key        TEXT        UNIQUE,
		trigger_event_id TEXT,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ar_alerts_due_idx ON ar_alerts (status, scheduled_for)`,
	`CREATE INDEX IF NOT EXISTS ar_alerts_subject_idx ON ar_alerts (ar_id)`,
	`CREATE INDEX IF NOT EXISTS ar_alerts_claim_idx ON ar_alerts (status, updated_at)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return apperrors.NewStorageUnavailableError("ensure schema", err)
		}
	}
	return nil
}

// Stores bundles the three PostgreSQL stores over one pool.
type Stores struct {
	Events    *EventStore
	Snapshots *SnapshotStore
	Alerts    *AlertStore
}

func NewStores(db *sql.DB) *Stores {
	return &Stores{
		Events:    NewEventStore(db),
		Snapshots: NewSnapshotStore(db),
		Alerts:    NewAlertStore(db),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func unavailable(op string, err error) error {
	return apperrors.NewStorageUnavailableError(op, err)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func encodeAddress(a *models.Address) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

func decodeAddress(raw []byte) (*models.Address, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var a models.Address
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	return &a, nil
}
