// internal/workers/delivery/handler.go
package delivery

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"ar-ledger/internal/alerts"
	"ar-ledger/internal/channel"
	apperrors "ar-ledger/internal/common/errors"
	"ar-ledger/internal/common/logger"
	"ar-ledger/internal/common/metrics"
	"ar-ledger/internal/common/observability"
	"ar-ledger/internal/ids"
	"ar-ledger/internal/models"
	"ar-ledger/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

const TaskType = "alert-delivery"

// Worker polls the alert queue and drives each due alert through one
// delivery attempt.
type Worker struct {
	config  *Config
	alerts  store.AlertStore
	channel channel.Channel
	audit   alerts.AuditRecorder
	logger  logger.Logger
	errs    *apperrors.ErrorHandler
	obs     *observability.Observability
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Worker)

func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

func WithObservability(o *observability.Observability) Option {
	return func(w *Worker) { w.obs = o }
}

func NewWorker(cfg *Config, alertStore store.AlertStore, ch channel.Channel, audit alerts.AuditRecorder, log logger.Logger, opts ...Option) *Worker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	w := &Worker{
		config:  cfg,
		alerts:  alertStore,
		channel: ch,
		audit:   audit,
		logger:  l,
		errs:    apperrors.NewErrorHandler(l),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start polls every PollInterval until Stop is called or ctx ends.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(w.config.PollInterval)
		defer ticker.Stop()

		w.logger.Info("delivery loop started", map[string]interface{}{
			"pollInterval": w.config.PollInterval.String(),
			"batchSize":    w.config.BatchSize,
		})
		for {
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("delivery poll failed", map[string]interface{}{"error": err.Error()})
			}
			select {
			case <-ctx.Done():
				w.logger.Info("delivery loop stopped", nil)
				return
			case <-ticker.C:
			}
		}
	}(w.done)
}

// Stop cancels the loop and waits for the in-flight poll to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunOnce settles stale claims, then delivers one batch of due alerts.
// Per-alert failures are logged and collected in the report; only a failure
// to read the queue is returned.
func (w *Worker) RunOnce(ctx context.Context) (*Report, error) {
	report := &Report{}
	w.reclaim(ctx, report)

	due, err := w.alerts.ListDue(ctx, w.now(), w.config.BatchSize)
	if err != nil {
		return nil, err
	}

	report.Picked = len(due)
	for _, alert := range due {
		if ctx.Err() != nil {
			break
		}
		outcome, err := w.deliver(ctx, alert)
		switch outcome {
		case metrics.OutcomeOK:
			report.Sent++
		case metrics.OutcomeRetry:
			report.Retried++
		case metrics.OutcomeFailed:
			report.Failed++
		case metrics.OutcomeSkipped:
			report.Skipped++
		}
		if err != nil {
			w.errs.HandleItemError("deliver alert", alert.ID, err)
			report.Errors = append(report.Errors, err)
		}
	}
	return report, nil
}

// reclaim settles alerts left PROCESSING past ReclaimAfter, whether the
// poller crashed mid-attempt or its outcome write failed. The claimed attempt
// counts as failed and follows the normal retry rules.
func (w *Worker) reclaim(ctx context.Context, report *Report) {
	limit := w.config.reclaimAfter()
	stale, err := w.alerts.ListStale(ctx, w.now().Add(-limit), w.config.BatchSize)
	if err != nil {
		w.errs.HandleItemError("reclaim alerts", "", err)
		report.Errors = append(report.Errors, err)
		return
	}

	for _, alert := range stale {
		if ctx.Err() != nil {
			return
		}
		cause := apperrors.NewNotificationTimeoutError(alert.Address.Channel, limit)
		outcome, err := w.fail(ctx, alert, cause)
		switch outcome {
		case metrics.OutcomeRetry, metrics.OutcomeFailed:
			report.Reclaimed++
			if outcome == metrics.OutcomeFailed {
				report.Failed++
			}
			w.logger.Warn("stale claim reclaimed", map[string]interface{}{
				"alertId":  alert.ID,
				"attempt":  alert.Attempts,
				"terminal": outcome == metrics.OutcomeFailed,
			})
		case metrics.OutcomeSkipped:
			report.Skipped++
			continue
		}
		if err != nil {
			w.errs.HandleItemError("reclaim alert", alert.ID, err)
			report.Errors = append(report.Errors, err)
		}
	}
}

// deliver makes one attempt. The returned error is the attempt's failure (or
// a bookkeeping failure) even when the alert was rescheduled.
func (w *Worker) deliver(ctx context.Context, alert *models.Alert) (string, error) {
	now := w.now()
	claimed := alert.Clone()
	claimed.Status = models.AlertProcessingStatus
	claimed.Attempts++
	claimed.UpdatedAt = now
	if err := w.alerts.Transition(ctx, claimed, models.AlertQueuedStatus); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return metrics.OutcomeSkipped, nil
		}
		return metrics.OutcomeError, err
	}

	ctx, span := w.obs.StartSpan(ctx, "delivery.attempt",
		attribute.String("alertId", claimed.ID),
		attribute.Int("attempt", claimed.Attempts))
	defer span.End()

	receipt, sendErr := w.send(ctx, claimed)
	now = w.now()

	if sendErr == nil {
		sent := claimed.Clone()
		sent.Status = models.AlertSentStatus
		sent.SentAt = &now
		sent.UpdatedAt = now
		sent.LastError = nil
		if receipt != "" {
			sent.ReceiptID = &receipt
		}
		if err := w.alerts.Transition(ctx, sent, models.AlertProcessingStatus); err != nil {
			return metrics.OutcomeError, err
		}
		metrics.AlertsDelivered.WithLabelValues(metrics.OutcomeOK).Inc()
		w.logger.Info("alert sent", map[string]interface{}{
			"alertId":   sent.ID,
			"arId":      sent.ARID,
			"attempt":   sent.Attempts,
			"receiptId": receipt,
		})
		return metrics.OutcomeOK, w.record(ctx, sent, now, models.AlertSent{
			AlertID:   sent.ID,
			Attempt:   sent.Attempts,
			ReceiptID: receipt,
		})
	}

	return w.fail(ctx, claimed, sendErr)
}

// fail settles a PROCESSING alert whose attempt failed with cause: back to
// QUEUED with backoff while attempts remain, FAILED otherwise. The returned
// error always includes cause.
func (w *Worker) fail(ctx context.Context, claimed *models.Alert, cause error) (string, error) {
	now := w.now()
	msg := cause.Error()
	next := claimed.Clone()
	next.LastError = &msg
	next.UpdatedAt = now
	payload := models.AlertFailed{AlertID: next.ID, Attempt: next.Attempts, Error: msg}

	outcome := metrics.OutcomeRetry
	if next.Attempts < next.MaxAttempts {
		at := now.Add(alerts.Backoff(w.config.BaseDelay, next.Attempts))
		next.Status = models.AlertQueuedStatus
		next.ScheduledFor = at
		payload.Retrying = true
		payload.NextAttemptAt = &at
	} else {
		outcome = metrics.OutcomeFailed
		next.Status = models.AlertFailedStatus
		next.FailedAt = &now
	}

	if err := w.alerts.Transition(ctx, next, models.AlertProcessingStatus); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return metrics.OutcomeSkipped, cause
		}
		return metrics.OutcomeError, errors.Join(cause, err)
	}
	metrics.AlertsDelivered.WithLabelValues(outcome).Inc()
	if auditErr := w.record(ctx, next, now, payload); auditErr != nil {
		return outcome, errors.Join(cause, auditErr)
	}
	return outcome, cause
}

func (w *Worker) send(ctx context.Context, alert *models.Alert) (string, error) {
	sendCtx, cancel := context.WithTimeout(ctx, w.config.SendTimeout)
	defer cancel()

	text := alerts.Render(alert.Template, alert.Data)
	started := time.Now()
	receipt, err := w.channel.Send(sendCtx, alert.Address, text)
	elapsed := time.Since(started)

	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
		if errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
			err = apperrors.NewNotificationTimeoutError(alert.Address.Channel, w.config.SendTimeout)
		}
	}
	metrics.AlertDeliveryDuration.Observe(elapsed.Seconds())
	w.obs.RecordDelivery(ctx, elapsed, outcome)
	return receipt, err
}

func (w *Worker) record(ctx context.Context, alert *models.Alert, at time.Time, payload models.Payload) error {
	if w.audit == nil {
		return nil
	}
	id := ids.Derived(alert.ID, string(payload.Kind()), strconv.Itoa(alert.Attempts))
	return w.audit.RecordAudit(ctx, models.NewEvent(id, alert.ARID, at, models.SystemActor, payload))
}
