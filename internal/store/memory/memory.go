// Package memory implements the store contracts in process. It backs the
// component tests and local runs without PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ar-ledger/internal/common/dates"
	"ar-ledger/internal/models"
	"ar-ledger/internal/store"
)

// ==========================
// Events
// ==========================

type EventStore struct {
	mu     sync.RWMutex
	seq    int64
	byID   map[string]struct{}
	events []models.Event
}

func NewEventStore() *EventStore {
	return &EventStore{byID: map[string]struct{}{}}
}

func (s *EventStore) Append(_ context.Context, evt models.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[evt.ID]; ok {
		return 0, store.ErrDuplicate
	}
	s.seq++
	evt.Seq = s.seq
	s.byID[evt.ID] = struct{}{}
	s.events = append(s.events, evt)
	return evt.Seq, nil
}

func (s *EventStore) ListByAR(_ context.Context, arID string) ([]models.Event, error) {
	return s.filter(func(e models.Event) bool { return e.ARID == arID }), nil
}

func (s *EventStore) ListByKind(_ context.Context, kind models.EventKind, from, to *time.Time) ([]models.Event, error) {
	return s.filter(func(e models.Event) bool {
		if e.Kind != kind {
			return false
		}
		if from != nil && e.OccurredAt.Before(*from) {
			return false
		}
		if to != nil && e.OccurredAt.After(*to) {
			return false
		}
		return true
	}), nil
}

func (s *EventStore) ListAfter(_ context.Context, cursor store.Cursor, limit int) ([]models.Event, error) {
	out := s.filter(cursor.After)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len reports how many events are stored.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *EventStore) filter(keep func(models.Event) bool) []models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Event, 0)
	for _, e := range s.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out
}

// ==========================
// Snapshots
// ==========================

type SnapshotStore struct {
	mu   sync.RWMutex
	rows map[string]*models.AR
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{rows: map[string]*models.AR{}}
}

func (s *SnapshotStore) Insert(_ context.Context, ar *models.AR) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[ar.ID]; ok {
		return store.ErrVersionConflict
	}
	s.rows[ar.ID] = ar.Clone()
	return nil
}

func (s *SnapshotStore) Update(_ context.Context, ar *models.AR, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rows[ar.ID]
	if !ok || cur.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	s.rows[ar.ID] = ar.Clone()
	return nil
}

func (s *SnapshotStore) Put(_ context.Context, ar *models.AR) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[ar.ID] = ar.Clone()
	return nil
}

func (s *SnapshotStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *SnapshotStore) Get(_ context.Context, id string) (*models.AR, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ar, ok := s.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return ar.Clone(), nil
}

func (s *SnapshotStore) ListByBillableEntity(_ context.Context, billableEntityID string) ([]*models.AR, error) {
	return s.filter(func(a *models.AR) bool { return a.BillableEntityID == billableEntityID }), nil
}

func (s *SnapshotStore) ListByZone(_ context.Context, zone string) ([]*models.AR, error) {
	return s.filter(func(a *models.AR) bool { return a.Zone == zone }), nil
}

func (s *SnapshotStore) ListByStatus(_ context.Context, status models.ARStatus) ([]*models.AR, error) {
	return s.filter(func(a *models.AR) bool { return a.Status == status }), nil
}

func (s *SnapshotStore) ListByDueDateAndStatus(_ context.Context, dueDate time.Time, status models.ARStatus) ([]*models.AR, error) {
	return s.filter(func(a *models.AR) bool {
		return a.Status == status && dates.Same(a.DueDate, dueDate)
	}), nil
}

func (s *SnapshotStore) ListOverdue(_ context.Context, asOf time.Time) ([]*models.AR, error) {
	day := dates.Civil(asOf)
	return s.filter(func(a *models.AR) bool {
		return a.Open() && a.DueDate.Before(day)
	}), nil
}

func (s *SnapshotStore) ListByAssignedSales(_ context.Context, salesID string) ([]*models.AR, error) {
	return s.filter(func(a *models.AR) bool {
		return a.AssignedSalesID != nil && *a.AssignedSalesID == salesID
	}), nil
}

func (s *SnapshotStore) ListAll(_ context.Context, page store.Page) ([]*models.AR, error) {
	all := s.filter(func(*models.AR) bool { return true })
	if page.Offset >= len(all) {
		return []*models.AR{}, nil
	}
	all = all[page.Offset:]
	if page.Limit > 0 && len(all) > page.Limit {
		all = all[:page.Limit]
	}
	return all, nil
}

func (s *SnapshotStore) FindByBillableAndDueDate(_ context.Context, billableEntityID string, dueDate time.Time) (*models.AR, error) {
	found := s.filter(func(a *models.AR) bool {
		return a.BillableEntityID == billableEntityID && dates.Same(a.DueDate, dueDate)
	})
	if len(found) == 0 {
		return nil, store.ErrNotFound
	}
	return found[0], nil
}

func (s *SnapshotStore) ListActiveBillableEntities(_ context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	out := []string{}
	for _, a := range s.filter(func(a *models.AR) bool { return a.Status != models.StatusWrittenOff }) {
		if _, ok := seen[a.BillableEntityID]; ok {
			continue
		}
		seen[a.BillableEntityID] = struct{}{}
		out = append(out, a.BillableEntityID)
	}
	sort.Strings(out)
	return out, nil
}

// filter returns clones ordered by due date then id, matching the SQL stores.
func (s *SnapshotStore) filter(keep func(*models.AR) bool) []*models.AR {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AR, 0)
	for _, a := range s.rows {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out
}

// ==========================
// Alerts
// ==========================

type AlertStore struct {
	mu      sync.RWMutex
	rows    map[string]*models.Alert
	byDedup map[string]string
	// OnTransition, when set, observes every successful status transition.
	OnTransition func(alert *models.Alert)
}

func NewAlertStore() *AlertStore {
	return &AlertStore{rows: map[string]*models.Alert{}, byDedup: map[string]string{}}
}

func (s *AlertStore) Insert(_ context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[alert.ID]; ok {
		return store.ErrDuplicate
	}
	if alert.DedupKey != nil {
		if _, ok := s.byDedup[*alert.DedupKey]; ok {
			return store.ErrDuplicate
		}
		s.byDedup[*alert.DedupKey] = alert.ID
	}
	s.rows[alert.ID] = alert.Clone()
	return nil
}

func (s *AlertStore) Get(_ context.Context, id string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *AlertStore) FindByDedupKey(_ context.Context, key string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byDedup[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.rows[id].Clone(), nil
}

func (s *AlertStore) ListDue(_ context.Context, now time.Time, limit int) ([]*models.Alert, error) {
	out := s.filter(func(a *models.Alert) bool {
		return a.Status == models.AlertQueuedStatus && !a.ScheduledFor.After(now)
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ScheduledFor.Before(out[j].ScheduledFor)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *AlertStore) ListByAR(_ context.Context, arID string) ([]*models.Alert, error) {
	out := s.filter(func(a *models.Alert) bool { return a.ARID == arID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *AlertStore) ListStale(_ context.Context, cutoff time.Time, limit int) ([]*models.Alert, error) {
	out := s.filter(func(a *models.Alert) bool {
		return a.Status == models.AlertProcessingStatus && a.UpdatedAt.Before(cutoff)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *AlertStore) Transition(_ context.Context, alert *models.Alert, from models.AlertStatus) error {
	s.mu.Lock()
	cur, ok := s.rows[alert.ID]
	if !ok || cur.Status != from {
		s.mu.Unlock()
		return store.ErrVersionConflict
	}
	s.rows[alert.ID] = alert.Clone()
	hook := s.OnTransition
	s.mu.Unlock()
	if hook != nil {
		hook(alert.Clone())
	}
	return nil
}

// All returns every alert ordered by creation time.
func (s *AlertStore) All() []*models.Alert {
	out := s.filter(func(*models.Alert) bool { return true })
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *AlertStore) filter(keep func(*models.Alert) bool) []*models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Alert, 0)
	for _, a := range s.rows {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
