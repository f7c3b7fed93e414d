// internal/commands/rebuild.go
package commands

import (
	"context"
	"fmt"

	apperrors "ar-ledger/internal/common/errors"
	"ar-ledger/internal/models"
	"ar-ledger/internal/replay"
)

// derive folds the subject's full event history without touching the snapshot.
func (s *Service) derive(ctx context.Context, arID string) (*models.AR, error) {
	events, err := s.log.EventsFor(ctx, arID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, apperrors.NewNotFoundError("ar", arID)
	}
	return s.fold(arID, events)
}

func (s *Service) fold(arID string, events []models.Event) (*models.AR, error) {
	warnings, err := replay.Validate(events)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		s.logger.Warn("event sequence warning", map[string]interface{}{"arId": arID, "warning": w})
	}
	return replay.Replay(replay.Sort(events))
}

// Rebuild re-derives one snapshot from the log and stores it unconditionally.
func (s *Service) Rebuild(ctx context.Context, arID string) (*models.AR, error) {
	ar, err := s.derive(ctx, arID)
	if err != nil {
		return nil, err
	}
	if err := s.snapshots.Put(ctx, ar); err != nil {
		return nil, err
	}
	return ar, nil
}

// RebuildAll re-derives every snapshot from the whole log. Subjects that fail
// to fold are reported and skipped; a read failure on the log aborts the run.
func (s *Service) RebuildAll(ctx context.Context) (*RebuildReport, error) {
	report := &RebuildReport{Failed: make(map[string]error)}

	grouped := make(map[string][]models.Event)
	var order []string
	for evt, err := range s.log.StreamAll(ctx) {
		if err != nil {
			return report, err
		}
		if _, ok := grouped[evt.ARID]; !ok {
			order = append(order, evt.ARID)
		}
		grouped[evt.ARID] = append(grouped[evt.ARID], evt)
		report.Events++
	}

	for _, arID := range order {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		events := grouped[arID]
		warnings, err := replay.Validate(events)
		for _, w := range warnings {
			report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %s", arID, w))
		}
		if err != nil {
			report.Failed[arID] = err
			continue
		}
		ar, err := replay.Replay(replay.Sort(events))
		if err != nil {
			report.Failed[arID] = err
			continue
		}
		if err := s.snapshots.Put(ctx, ar); err != nil {
			report.Failed[arID] = err
			continue
		}
		report.Subjects++
	}

	s.logger.Info("snapshot rebuild finished", map[string]interface{}{
		"subjects": report.Subjects,
		"events":   report.Events,
		"failed":   len(report.Failed),
		"warnings": len(report.Warnings),
	})
	return report, nil
}
