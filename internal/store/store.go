// Package store declares the persistence contracts of the ledger: an
// append-only event log, a compare-and-swap snapshot table and an alert queue.
package store

import (
	"context"
	"errors"
	"time"

	"ar-ledger/internal/models"
)

var (
	// ErrDuplicate is returned when an insert collides on identity (or dedup key).
	ErrDuplicate = errors.New("store: duplicate")
	// ErrNotFound is returned by single-row lookups.
	ErrNotFound = errors.New("store: not found")
	// ErrVersionConflict is returned when a conditional write matched no row.
	ErrVersionConflict = errors.New("store: version conflict")
)

// Cursor positions a scan over the whole log in (OccurredAt, Seq) order.
type Cursor struct {
	At  time.Time
	Seq int64
}

// After reports whether evt sorts strictly after the cursor.
func (c Cursor) After(evt models.Event) bool {
	if evt.OccurredAt.Equal(c.At) {
		return evt.Seq > c.Seq
	}
	return evt.OccurredAt.After(c.At)
}

// EventStore persists immutable events keyed by event identity.
type EventStore interface {
	// Append inserts evt, assigning Seq. Returns ErrDuplicate when the identity exists.
	Append(ctx context.Context, evt models.Event) (int64, error)
	// ListByAR returns one subject's events ordered by (OccurredAt, Seq).
	ListByAR(ctx context.Context, arID string) ([]models.Event, error)
	// ListByKind returns events of one kind, optionally bounded in time (inclusive).
	ListByKind(ctx context.Context, kind models.EventKind, from, to *time.Time) ([]models.Event, error)
	// ListAfter returns up to limit events ordered by (OccurredAt, Seq) strictly after cursor.
	ListAfter(ctx context.Context, cursor Cursor, limit int) ([]models.Event, error)
}

// Page bounds a listing query.
type Page struct {
	Limit  int
	Offset int
}

// SnapshotStore holds the materialized AR view. Every write is conditional.
type SnapshotStore interface {
	// Insert writes a new snapshot. Returns ErrVersionConflict if the id exists.
	Insert(ctx context.Context, ar *models.AR) error
	// Update replaces the snapshot only if the stored version equals expectedVersion.
	Update(ctx context.Context, ar *models.AR, expectedVersion int64) error
	// Put writes unconditionally; reserved for rebuilds and administrative repair.
	Put(ctx context.Context, ar *models.AR) error
	// Delete removes a snapshot; administrative cleanup only.
	Delete(ctx context.Context, id string) error

	Get(ctx context.Context, id string) (*models.AR, error)
	ListByBillableEntity(ctx context.Context, billableEntityID string) ([]*models.AR, error)
	ListByZone(ctx context.Context, zone string) ([]*models.AR, error)
	ListByStatus(ctx context.Context, status models.ARStatus) ([]*models.AR, error)
	ListByDueDateAndStatus(ctx context.Context, dueDate time.Time, status models.ARStatus) ([]*models.AR, error)
	// ListOverdue returns open (PENDING or OVERDUE) ARs due strictly before asOf.
	ListOverdue(ctx context.Context, asOf time.Time) ([]*models.AR, error)
	ListByAssignedSales(ctx context.Context, salesID string) ([]*models.AR, error)
	ListAll(ctx context.Context, page Page) ([]*models.AR, error)
	// FindByBillableAndDueDate returns the AR for an entity and due date, ErrNotFound if none.
	FindByBillableAndDueDate(ctx context.Context, billableEntityID string, dueDate time.Time) (*models.AR, error)
	// ListActiveBillableEntities returns entities with at least one non-written-off AR.
	ListActiveBillableEntities(ctx context.Context) ([]string, error)
}

// AlertStore holds notification intents.
type AlertStore interface {
	// Insert returns ErrDuplicate when the id or the non-nil dedup key exists.
	Insert(ctx context.Context, alert *models.Alert) error
	Get(ctx context.Context, id string) (*models.Alert, error)
	FindByDedupKey(ctx context.Context, key string) (*models.Alert, error)
	// ListDue returns QUEUED alerts scheduled at or before now, highest priority
	// first, then oldest schedule, at most limit rows.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Alert, error)
	// ListStale returns PROCESSING alerts last updated before cutoff, oldest
	// first, at most limit rows.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*models.Alert, error)
	ListByAR(ctx context.Context, arID string) ([]*models.Alert, error)
	// Transition writes the alert's mutable fields only if its stored status is
	// from. Returns ErrVersionConflict otherwise.
	Transition(ctx context.Context, alert *models.Alert, from models.AlertStatus) error
}
