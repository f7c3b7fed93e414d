package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ar-ledger/internal/models"
	"ar-ledger/internal/store"
)

const eventColumns = `seq, id, ar_id, kind, occurred_at, actor_kind, actor_user_id, schema_version, payload`

// EventStore is the append-only event log table.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// Append inserts the event; an existing identity yields store.ErrDuplicate.
func (s *EventStore) Append(ctx context.Context, evt models.Event) (int64, error) {
	payload, err := models.EncodePayload(evt.Payload)
	if err != nil {
		return 0, fmt.Errorf("encode event %s: %w", evt.ID, err)
	}

	var seq int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO ar_events (id, ar_id, kind, occurred_at, actor_kind, actor_user_id, schema_version, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
		RETURNING seq`,
		evt.ID, evt.ARID, string(evt.Kind), evt.OccurredAt.UTC(),
		string(evt.Actor.Kind), nullString(optional(evt.Actor.UserID)),
		evt.SchemaVersion, payload,
	).Scan(&seq)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, store.ErrDuplicate
	case err != nil:
		return 0, unavailable("append event", err)
	}
	return seq, nil
}

func (s *EventStore) ListByAR(ctx context.Context, arID string) ([]models.Event, error) {
	return s.query(ctx, "list events by ar", `
		SELECT `+eventColumns+` FROM ar_events
		WHERE ar_id = $1
		ORDER BY occurred_at, seq`, arID)
}

func (s *EventStore) ListByKind(ctx context.Context, kind models.EventKind, from, to *time.Time) ([]models.Event, error) {
	return s.query(ctx, "list events by kind", `
		SELECT `+eventColumns+` FROM ar_events
		WHERE kind = $1
		  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
		  AND ($3::timestamptz IS NULL OR occurred_at <= $3)
		ORDER BY occurred_at, seq`, string(kind), nullTime(from), nullTime(to))
}

// ListAfter pages the whole log with a keyset on (occurred_at, seq).
func (s *EventStore) ListAfter(ctx context.Context, cursor store.Cursor, limit int) ([]models.Event, error) {
	return s.query(ctx, "stream events", `
		SELECT `+eventColumns+` FROM ar_events
		WHERE (occurred_at, seq) > ($1, $2)
		ORDER BY occurred_at, seq
		LIMIT $3`, cursor.At.UTC(), cursor.Seq, limit)
}

func (s *EventStore) query(ctx context.Context, op, q string, args ...interface{}) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	out := make([]models.Event, 0)
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

func scanEvent(row rowScanner) (models.Event, error) {
	var (
		evt       models.Event
		kind      string
		actorKind string
		userID    sql.NullString
		payload   []byte
	)
	if err := row.Scan(&evt.Seq, &evt.ID, &evt.ARID, &kind, &evt.OccurredAt,
		&actorKind, &userID, &evt.SchemaVersion, &payload); err != nil {
		return models.Event{}, unavailable("scan event", err)
	}
	evt.Kind = models.EventKind(kind)
	evt.OccurredAt = evt.OccurredAt.UTC()
	evt.Actor = models.Actor{Kind: models.ActorKind(actorKind), UserID: userID.String}

	p, err := models.DecodePayload(evt.Kind, payload)
	if err != nil {
		return models.Event{}, fmt.Errorf("event %s: %w", evt.ID, err)
	}
	evt.Payload = p
	return evt, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
