// internal/workers/sweep/handler.go
package sweep

import (
	"context"
	"time"

	"ar-ledger/internal/alerts"
	"ar-ledger/internal/commands"
	"ar-ledger/internal/common/dates"
	apperrors "ar-ledger/internal/common/errors"
	"ar-ledger/internal/common/logger"
	"ar-ledger/internal/common/metrics"
	"ar-ledger/internal/common/observability"
	"ar-ledger/internal/ids"
	"ar-ledger/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

const TaskType = "daily-sweep"

// Ledger is the part of the command layer the sweep drives.
type Ledger interface {
	ListByStatus(ctx context.Context, status models.ARStatus) ([]*models.AR, error)
	ListByDueDateAndStatus(ctx context.Context, dueDate time.Time, status models.ARStatus) ([]*models.AR, error)
	ListByBillableEntity(ctx context.Context, billableEntityID string) ([]*models.AR, error)
	ListActiveBillableEntities(ctx context.Context) ([]string, error)
	ChangeStatus(ctx context.Context, req commands.ChangeStatusRequest) (*models.AR, error)
	EnsurePeriod(ctx context.Context, template *models.AR, dueDate time.Time, source string) (*models.AR, bool, error)
}

// Enqueuer accepts notification intents.
type Enqueuer interface {
	Enqueue(ctx context.Context, p alerts.EnqueueParams) (*models.Alert, bool, error)
}

// Handler runs the five sweep steps for one calendar day. Every step is
// idempotent, so a rerun for the same day only fills in what a failed run
// left behind.
type Handler struct {
	config *Config
	ledger Ledger
	queue  Enqueuer
	logger logger.Logger
	errs   *apperrors.ErrorHandler
	obs    *observability.Observability
}

type HandlerOption func(*Handler)

func WithHandlerObservability(o *observability.Observability) HandlerOption {
	return func(h *Handler) { h.obs = o }
}

func NewHandler(cfg *Config, ledger Ledger, queue Enqueuer, log logger.Logger, opts ...HandlerOption) *Handler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	h := &Handler{
		config: cfg,
		ledger: ledger,
		queue:  queue,
		logger: l,
		errs:   apperrors.NewErrorHandler(l),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run sweeps the calendar day that now falls on in the configured location.
// Per-item failures are logged and counted; only a failed listing aborts a
// step, and the remaining steps still run.
func (h *Handler) Run(ctx context.Context, now time.Time) (*Report, error) {
	today := dates.Today(now, h.config.Location)
	report := &Report{Today: dates.Format(today)}

	ctx, span := h.obs.StartSpan(ctx, "sweep.run", attribute.String("today", report.Today))
	defer span.End()

	h.logger.Info("sweep started", map[string]interface{}{"today": report.Today})

	steps := []struct {
		name string
		fn   func(context.Context, time.Time, *Report) error
	}{
		{StepPromote, h.promoteOverdue},
		{StepDue, h.dueAlerts},
		{StepOverdue, h.overdueAlerts},
		{StepPreAlert, h.preAlerts},
		{StepHorizon, h.extendHorizon},
	}

	var firstErr error
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		stepCtx, stepSpan := h.obs.StartSpan(ctx, "sweep."+step.name)
		err := step.fn(stepCtx, today, report)
		stepSpan.End()
		if err != nil {
			h.fail(report, step.name, "", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	outcome := metrics.OutcomeOK
	if report.Failures > 0 {
		outcome = metrics.OutcomeError
	}
	metrics.SweepRuns.WithLabelValues(outcome).Inc()

	h.logger.Info("sweep finished", map[string]interface{}{
		"today":        report.Today,
		"promoted":     report.Promoted,
		"due":          report.DueAlerts,
		"overdue":      report.Overdue,
		"escalations":  report.Escalations,
		"preAlerts":    report.PreAlerts,
		"deduplicated": report.Deduplicated,
		"generated":    report.Generated,
		"failures":     report.Failures,
	})
	return report, firstErr
}

// promoteOverdue moves every PENDING receivable past its due date to OVERDUE.
// The event ID is derived from the day so a rerun is absorbed by the log.
func (h *Handler) promoteOverdue(ctx context.Context, today time.Time, report *Report) error {
	pending, err := h.ledger.ListByStatus(ctx, models.StatusPending)
	if err != nil {
		return err
	}
	for _, ar := range pending {
		if !ar.DueDate.Before(today) {
			continue
		}
		_, err := h.ledger.ChangeStatus(ctx, commands.ChangeStatusRequest{
			ARID:    ar.ID,
			Status:  models.StatusOverdue,
			Reason:  "due date passed",
			Actor:   models.SystemActor,
			EventID: ids.Derived(ar.ID, string(models.EventStatusChanged), string(models.StatusOverdue), dates.Format(today)),
		})
		if err != nil {
			h.fail(report, StepPromote, ar.ID, err)
			continue
		}
		report.Promoted++
		metrics.SweepItems.WithLabelValues(StepPromote, metrics.OutcomeOK).Inc()
	}
	return nil
}

func (h *Handler) dueAlerts(ctx context.Context, today time.Time, report *Report) error {
	due, err := h.ledger.ListByDueDateAndStatus(ctx, today, models.StatusPending)
	if err != nil {
		return err
	}
	for _, ar := range due {
		for _, role := range []models.Role{models.RoleCustomer, models.RoleManager} {
			key := alerts.DedupKey(ar.ID, models.AlertDue, role, ar.DueDate)
			h.enqueue(ctx, report, StepDue, ar, models.AlertDue, role, key, today, &report.DueAlerts)
		}
	}
	return nil
}

// overdueAlerts escalates to customer and manager on each day of the
// escalation window and sends the single OVERDUE notice on its day.
func (h *Handler) overdueAlerts(ctx context.Context, today time.Time, report *Report) error {
	overdue, err := h.ledger.ListByStatus(ctx, models.StatusOverdue)
	if err != nil {
		return err
	}
	for _, ar := range overdue {
		days := dates.DaysBetween(ar.DueDate, today)
		if days >= h.config.EscalationFrom && days <= h.config.EscalationTo {
			for _, role := range []models.Role{models.RoleCustomer, models.RoleManager} {
				key := alerts.EscalationKey(ar.ID, role, ar.DueDate, days)
				h.enqueue(ctx, report, StepOverdue, ar, models.AlertEscalation, role, key, today, &report.Escalations)
			}
		}
		if days == h.config.OverdueNoticeDay {
			key := alerts.DedupKey(ar.ID, models.AlertOverdue, models.RoleCustomer, ar.DueDate)
			h.enqueue(ctx, report, StepOverdue, ar, models.AlertOverdue, models.RoleCustomer, key, today, &report.Overdue)
		}
	}
	return nil
}

func (h *Handler) preAlerts(ctx context.Context, today time.Time, report *Report) error {
	target := dates.AddDays(today, h.config.PreAlertDays)
	upcoming, err := h.ledger.ListByDueDateAndStatus(ctx, target, models.StatusPending)
	if err != nil {
		return err
	}
	for _, ar := range upcoming {
		key := alerts.DedupKey(ar.ID, models.AlertPreAlert, models.RoleCustomer, ar.DueDate)
		h.enqueue(ctx, report, StepPreAlert, ar, models.AlertPreAlert, models.RoleCustomer, key, today, &report.PreAlerts)
	}
	return nil
}

// extendHorizon makes sure every active billable entity has a receivable for
// each monthly period from today up to HorizonMonths ahead. Periods follow
// the latest receivable's billing day, clamped to month length.
func (h *Handler) extendHorizon(ctx context.Context, today time.Time, report *Report) error {
	entities, err := h.ledger.ListActiveBillableEntities(ctx)
	if err != nil {
		return err
	}
	limit := dates.AddMonthsClamped(today, h.config.HorizonMonths)

	for _, entityID := range entities {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		records, err := h.ledger.ListByBillableEntity(ctx, entityID)
		if err != nil {
			h.fail(report, StepHorizon, entityID, err)
			continue
		}
		anchor := latestDue(records)
		if anchor == nil {
			continue
		}
		for i := 1; ; i++ {
			due := anchor.PeriodDue(i)
			if due.After(limit) {
				break
			}
			if due.Before(today) {
				continue
			}
			ar, created, err := h.ledger.EnsurePeriod(ctx, anchor, due, "horizon")
			if err != nil {
				h.fail(report, StepHorizon, entityID, err)
				break
			}
			if created {
				report.Generated++
				metrics.SweepItems.WithLabelValues(StepHorizon, metrics.OutcomeOK).Inc()
				h.logger.Debug("period generated", map[string]interface{}{
					"billableEntityId": entityID,
					"arId":             ar.ID,
					"dueDate":          dates.Format(due),
				})
			}
		}
	}
	return nil
}

// latestDue picks the non-written-off receivable with the latest due date.
func latestDue(records []*models.AR) *models.AR {
	var anchor *models.AR
	for _, ar := range records {
		if ar.Status == models.StatusWrittenOff {
			continue
		}
		if anchor == nil || ar.DueDate.After(anchor.DueDate) {
			anchor = ar
		}
	}
	return anchor
}

func (h *Handler) enqueue(ctx context.Context, report *Report, step string, ar *models.AR,
	t models.AlertType, role models.Role, key string, today time.Time, counter *int) {

	addr := ar.CustomerAddress
	if role == models.RoleManager {
		addr = ar.ManagerAddress
	}
	if addr == nil {
		metrics.SweepItems.WithLabelValues(step, metrics.OutcomeSkipped).Inc()
		return
	}

	_, created, err := h.queue.Enqueue(ctx, alerts.EnqueueParams{
		ARID:           ar.ID,
		Type:           t,
		Role:           role,
		Address:        *addr,
		Data:           alerts.MessageData(ar, today),
		MaxAttempts:    h.config.MaxAttempts,
		DedupKey:       key,
		TriggerEventID: ar.LastEventID,
	})
	if err != nil {
		h.fail(report, step, ar.ID, err)
		return
	}
	if !created {
		report.Deduplicated++
		metrics.SweepItems.WithLabelValues(step, metrics.OutcomeDuplicate).Inc()
		return
	}
	*counter++
	metrics.SweepItems.WithLabelValues(step, metrics.OutcomeOK).Inc()
}

func (h *Handler) fail(report *Report, step, itemID string, err error) {
	report.Failures++
	report.Errors = append(report.Errors, err)
	metrics.SweepItems.WithLabelValues(step, metrics.OutcomeError).Inc()
	h.errs.HandleItemError("sweep."+step, itemID, err)
}
