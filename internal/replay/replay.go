// Package replay derives AR snapshots from event sequences. Every function
// here is pure: the same input always yields the same output.
package replay

import (
	"fmt"
	"sort"

	"ar-ledger/internal/common/dates"
	apperrors "ar-ledger/internal/common/errors"
	"ar-ledger/internal/models"
)

// Replay folds an ordered, non-empty sequence whose first event is
// AR_CREATED into a snapshot. Version equals the number of folded events.
func Replay(events []models.Event) (*models.AR, error) {
	if len(events) == 0 {
		return nil, apperrors.NewInvalidEventSequenceError("event sequence is empty")
	}

	ar, err := Init(events[0])
	if err != nil {
		return nil, err
	}
	for _, evt := range events[1:] {
		if err := Apply(ar, evt); err != nil {
			return nil, err
		}
	}
	return ar, nil
}

// Init builds the initial snapshot from a creation event. The status is
// always PENDING, whatever the payload says.
func Init(evt models.Event) (*models.AR, error) {
	if evt.Kind != models.EventARCreated {
		return nil, apperrors.NewInvalidEventSequenceError(
			fmt.Sprintf("first event %s is %s, want %s", evt.ID, evt.Kind, models.EventARCreated))
	}
	p, ok := evt.Payload.(models.ARCreated)
	if !ok {
		return nil, apperrors.NewInvalidEventSequenceError(fmt.Sprintf("event %s carries no creation payload", evt.ID))
	}

	ar := &models.AR{
		ID:               evt.ARID,
		BillableEntityID: p.BillableEntityID,
		CustomerName:     p.CustomerName,
		Zone:             p.Zone,
		Amount:           p.Amount,
		Status:           models.StatusPending,
		InvoiceDate:      dates.Civil(p.InvoiceDate),
		DueDate:          dates.Civil(p.DueDate),
		BillingDay:       p.BillingDay,
		CreatedAt:        evt.OccurredAt,
	}
	if ar.BillingDay == 0 {
		ar.BillingDay = ar.DueDate.Day()
	}
	if p.AssignedSalesID != nil {
		s := *p.AssignedSalesID
		ar.AssignedSalesID = &s
	}
	if p.CustomerAddress != nil {
		a := *p.CustomerAddress
		ar.CustomerAddress = &a
	}
	if p.ManagerAddress != nil {
		a := *p.ManagerAddress
		ar.ManagerAddress = &a
	}
	touch(ar, evt)
	return ar, nil
}

// Apply folds one event into ar in place.
func Apply(ar *models.AR, evt models.Event) error {
	if evt.ARID != ar.ID {
		return apperrors.NewInvalidEventSequenceError(
			fmt.Sprintf("event %s belongs to %s, not %s", evt.ID, evt.ARID, ar.ID))
	}

	switch p := evt.Payload.(type) {
	case models.ARCreated:
		return apperrors.NewInvalidEventSequenceError(fmt.Sprintf("duplicate creation event %s", evt.ID))
	case models.StatusChanged:
		ar.Status = p.To
	case models.PaymentVerified:
		paid := dates.Civil(p.PaidDate)
		ar.Status = models.StatusPaid
		ar.PaidDate = &paid
	case models.DueDateChanged:
		ar.DueDate = dates.Civil(p.To)
	case models.FollowUpLogged, models.AlertQueued, models.AlertSent, models.AlertFailed, models.Unknown:
		// Bookkeeping only.
	default:
		// Kinds added after this build are tolerated the same way.
	}
	touch(ar, evt)
	return nil
}

func touch(ar *models.AR, evt models.Event) {
	ar.LastEventID = evt.ID
	ar.LastEventAt = evt.OccurredAt
	ar.EventCount++
	ar.Version = int64(ar.EventCount)
}

// Validate checks a candidate sequence before folding it. Structural problems
// are errors; timestamps out of order only produce warnings.
func Validate(events []models.Event) ([]string, error) {
	if len(events) == 0 {
		return nil, apperrors.NewInvalidEventSequenceError("event sequence is empty")
	}
	if events[0].Kind != models.EventARCreated {
		return nil, apperrors.NewInvalidEventSequenceError(
			fmt.Sprintf("first event is %s, want %s", events[0].Kind, models.EventARCreated))
	}

	var warnings []string
	subject := events[0].ARID
	for i, evt := range events {
		if evt.ARID != subject {
			return warnings, apperrors.NewInvalidEventSequenceError(
				fmt.Sprintf("event %s belongs to %s, sequence is for %s", evt.ID, evt.ARID, subject))
		}
		if i > 0 && evt.OccurredAt.Before(events[i-1].OccurredAt) {
			warnings = append(warnings, fmt.Sprintf("event %s at %s precedes previous event %s",
				evt.ID, evt.OccurredAt.Format("2006-01-02T15:04:05Z07:00"), events[i-1].ID))
		}
	}
	return warnings, nil
}

// Sort orders events by timestamp, keeping the creation event first and using
// the store sequence to break ties.
func Sort(events []models.Event) []models.Event {
	out := append([]models.Event(nil), events...)
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := out[i].Kind == models.EventARCreated, out[j].Kind == models.EventARCreated
		if ci != cj {
			return ci
		}
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}
