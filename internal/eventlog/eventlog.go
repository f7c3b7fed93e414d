// Package eventlog is the append-only, idempotent-by-identity log of AR events.
package eventlog

import (
	"context"
	"errors"
	"iter"
	"time"

	apperrors "ar-ledger/internal/common/errors"
	"ar-ledger/internal/common/logger"
	"ar-ledger/internal/common/metrics"
	"ar-ledger/internal/models"
	"ar-ledger/internal/store"
)

// Outcome reports what Append did. A duplicate is not an error. NotAppended
// accompanies every non-nil error.
type Outcome int

const (
	NotAppended Outcome = iota
	Appended
	DuplicateIgnored
)

func (o Outcome) String() string {
	switch o {
	case Appended:
		return "APPENDED"
	case DuplicateIgnored:
		return "DUPLICATE_IGNORED"
	default:
		return "NOT_APPENDED"
	}
}

// Indexer receives every newly appended event. Failures are logged only.
type Indexer interface {
	IndexEvent(ctx context.Context, evt models.Event) error
}

const defaultPageSize = 500

type Log struct {
	store    store.EventStore
	indexer  Indexer
	logger   logger.Logger
	pageSize int
}

type Option func(*Log)

// WithIndexer mirrors appended events into a secondary index.
func WithIndexer(x Indexer) Option {
	return func(l *Log) { l.indexer = x }
}

// WithPageSize sets how many events StreamAll fetches per round trip.
func WithPageSize(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

func New(es store.EventStore, log logger.Logger, opts ...Option) *Log {
	l := &Log{
		store:    es,
		logger:   logger.Component(log, "eventlog"),
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append persists evt. Re-appending an existing identity returns
// DuplicateIgnored and leaves the log unchanged.
func (l *Log) Append(ctx context.Context, evt models.Event) (Outcome, error) {
	if err := checkEvent(evt); err != nil {
		metrics.EventsAppended.WithLabelValues(string(evt.Kind), metrics.OutcomeRejected).Inc()
		return NotAppended, err
	}

	seq, err := l.store.Append(ctx, evt)
	if errors.Is(err, store.ErrDuplicate) {
		metrics.EventsAppended.WithLabelValues(string(evt.Kind), metrics.OutcomeDuplicate).Inc()
		l.logger.Info("duplicate event ignored", map[string]interface{}{
			"eventId": evt.ID,
			"arId":    evt.ARID,
			"kind":    string(evt.Kind),
		})
		return DuplicateIgnored, nil
	}
	if err != nil {
		metrics.EventsAppended.WithLabelValues(string(evt.Kind), metrics.OutcomeError).Inc()
		return NotAppended, err
	}
	metrics.EventsAppended.WithLabelValues(string(evt.Kind), metrics.OutcomeOK).Inc()

	if l.indexer != nil {
		evt.Seq = seq
		if err := l.indexer.IndexEvent(ctx, evt); err != nil {
			l.logger.Warn("event index failed", map[string]interface{}{
				"eventId": evt.ID,
				"error":   err.Error(),
			})
		}
	}
	return Appended, nil
}

// EventsFor returns the subject's events in timestamp order.
func (l *Log) EventsFor(ctx context.Context, arID string) ([]models.Event, error) {
	return l.store.ListByAR(ctx, arID)
}

// EventsByKind returns events of kind, optionally bounded (inclusive) by from and to.
func (l *Log) EventsByKind(ctx context.Context, kind models.EventKind, from, to *time.Time) ([]models.Event, error) {
	return l.store.ListByKind(ctx, kind, from, to)
}

// StreamAll yields the whole log in timestamp order, fetching lazily a page at
// a time. Each call starts again from the beginning. Iteration stops after
// the first error is yielded.
func (l *Log) StreamAll(ctx context.Context) iter.Seq2[models.Event, error] {
	return func(yield func(models.Event, error) bool) {
		var cursor store.Cursor
		for {
			if err := ctx.Err(); err != nil {
				yield(models.Event{}, err)
				return
			}
			page, err := l.store.ListAfter(ctx, cursor, l.pageSize)
			if err != nil {
				yield(models.Event{}, err)
				return
			}
			for _, evt := range page {
				if !yield(evt, nil) {
					return
				}
			}
			if len(page) < l.pageSize {
				return
			}
			last := page[len(page)-1]
			cursor = store.Cursor{At: last.OccurredAt, Seq: last.Seq}
		}
	}
}

func checkEvent(evt models.Event) error {
	switch {
	case evt.ID == "":
		return apperrors.NewValidationError("event id is required")
	case evt.ARID == "":
		return apperrors.NewValidationError("event subject is required")
	case evt.Payload == nil:
		return apperrors.NewValidationError("event payload is required")
	case evt.Payload.Kind() != evt.Kind:
		return apperrors.NewValidationErrorf("event kind %s does not match payload %s", evt.Kind, evt.Payload.Kind())
	case evt.OccurredAt.IsZero():
		return apperrors.NewValidationError("event timestamp is required")
	}
	return nil
}
