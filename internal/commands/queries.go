// internal/commands/queries.go
package commands

import (
	"context"
	"time"

	"ar-ledger/internal/common/dates"
	apperrors "ar-ledger/internal/common/errors"
	"ar-ledger/internal/models"
	"ar-ledger/internal/store"
)

// Get returns the snapshot for arID. A snapshot missing while its events exist
// is rebuilt on read.
func (s *Service) Get(ctx context.Context, arID string) (*models.AR, error) {
	if arID == "" {
		return nil, apperrors.NewValidationError("ar id is required")
	}
	return s.load(ctx, arID)
}

// History returns the AR's events in replay order.
func (s *Service) History(ctx context.Context, arID string) ([]models.Event, error) {
	events, err := s.log.EventsFor(ctx, arID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, apperrors.NewNotFoundError("ar", arID)
	}
	return events, nil
}

func (s *Service) ListByBillableEntity(ctx context.Context, billableEntityID string) ([]*models.AR, error) {
	return s.snapshots.ListByBillableEntity(ctx, billableEntityID)
}

func (s *Service) ListByZone(ctx context.Context, zone string) ([]*models.AR, error) {
	return s.snapshots.ListByZone(ctx, zone)
}

func (s *Service) ListByStatus(ctx context.Context, status models.ARStatus) ([]*models.AR, error) {
	if !status.Valid() {
		return nil, apperrors.NewInvalidStatusError(string(status))
	}
	return s.snapshots.ListByStatus(ctx, status)
}

func (s *Service) ListByDueDateAndStatus(ctx context.Context, dueDate time.Time, status models.ARStatus) ([]*models.AR, error) {
	if !status.Valid() {
		return nil, apperrors.NewInvalidStatusError(string(status))
	}
	return s.snapshots.ListByDueDateAndStatus(ctx, dates.Civil(dueDate), status)
}

// ListOverdue returns open ARs whose due date is before asOf.
func (s *Service) ListOverdue(ctx context.Context, asOf time.Time) ([]*models.AR, error) {
	return s.snapshots.ListOverdue(ctx, dates.Civil(asOf))
}

func (s *Service) ListByAssignedSales(ctx context.Context, salesID string) ([]*models.AR, error) {
	return s.snapshots.ListByAssignedSales(ctx, salesID)
}

func (s *Service) ListAll(ctx context.Context, page store.Page) ([]*models.AR, error) {
	if page.Limit < 0 || page.Offset < 0 {
		return nil, apperrors.NewValidationError("page limit and offset must not be negative")
	}
	return s.snapshots.ListAll(ctx, page)
}

// FindByPeriod returns the AR billed to an entity for a due date.
func (s *Service) FindByPeriod(ctx context.Context, billableEntityID string, dueDate time.Time) (*models.AR, error) {
	ar, err := s.snapshots.FindByBillableAndDueDate(ctx, billableEntityID, dates.Civil(dueDate))
	if err == store.ErrNotFound {
		return nil, apperrors.NewNotFoundError("ar", billableEntityID+"@"+dates.Format(dueDate))
	}
	return ar, err
}

func (s *Service) ListActiveBillableEntities(ctx context.Context) ([]string, error) {
	return s.snapshots.ListActiveBillableEntities(ctx)
}
