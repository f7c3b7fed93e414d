// Package alerts turns lifecycle facts into deduplicated, prioritized
// notification intents.
package alerts

import (
	"context"
	"errors"
	"time"

	apperrors "ar-ledger/internal/common/errors"
	"ar-ledger/internal/common/logger"
	"ar-ledger/internal/common/metrics"
	"ar-ledger/internal/ids"
	"ar-ledger/internal/models"
	"ar-ledger/internal/store"
)

// AuditRecorder appends alert lifecycle events to the AR's history.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, evt models.Event) error
}

// TemplateSource resolves the message body for an alert type and role.
type TemplateSource interface {
	Body(alertType, role string) (string, error)
}

// EnqueueParams describes one notification intent. Zero values take the
// documented defaults: type priority, now, DefaultMaxAttempts and the
// registry template.
type EnqueueParams struct {
	ARID           string
	Type           models.AlertType
	Role           models.Role
	Address        models.Address
	Template       string
	Data           map[string]string
	Priority       *int
	ScheduledFor   *time.Time
	MaxAttempts    int
	DedupKey       string
	TriggerEventID string
}

type Queue struct {
	alerts    store.AlertStore
	audit     AuditRecorder
	templates TemplateSource
	logger    logger.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Queue)

func WithTemplates(t TemplateSource) Option {
	return func(q *Queue) { q.templates = t }
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(q *Queue) { q.newID = fn }
}

func NewQueue(alerts store.AlertStore, audit AuditRecorder, log logger.Logger, opts ...Option) *Queue {
	q := &Queue{
		alerts: alerts,
		audit:  audit,
		logger: logger.Component(log, "alerts"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  ids.New,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue persists a QUEUED alert and records ALERT_QUEUED for audit. When
// an alert with the same dedup key exists it is returned with created=false
// and nothing new is persisted.
func (q *Queue) Enqueue(ctx context.Context, p EnqueueParams) (alert *models.Alert, created bool, err error) {
	if err := checkParams(p); err != nil {
		metrics.AlertsEnqueued.WithLabelValues(string(p.Type), metrics.OutcomeRejected).Inc()
		return nil, false, err
	}

	if p.DedupKey != "" {
		existing, err := q.alerts.FindByDedupKey(ctx, p.DedupKey)
		if err == nil {
			return q.deduplicated(ctx, existing)
		}
		if !errors.Is(err, store.ErrNotFound) {
			metrics.AlertsEnqueued.WithLabelValues(string(p.Type), metrics.OutcomeError).Inc()
			return nil, false, err
		}
	}

	alert, err = q.build(p)
	if err != nil {
		metrics.AlertsEnqueued.WithLabelValues(string(p.Type), metrics.OutcomeRejected).Inc()
		return nil, false, err
	}

	if err := q.alerts.Insert(ctx, alert); err != nil {
		if errors.Is(err, store.ErrDuplicate) && p.DedupKey != "" {
			existing, findErr := q.alerts.FindByDedupKey(ctx, p.DedupKey)
			if findErr == nil {
				return q.deduplicated(ctx, existing)
			}
		}
		metrics.AlertsEnqueued.WithLabelValues(string(p.Type), metrics.OutcomeError).Inc()
		return nil, false, err
	}
	metrics.AlertsEnqueued.WithLabelValues(string(p.Type), metrics.OutcomeOK).Inc()

	q.logger.Info("alert queued", map[string]interface{}{
		"alertId":      alert.ID,
		"arId":         alert.ARID,
		"type":         string(alert.Type),
		"role":         string(alert.Role),
		"priority":     alert.Priority,
		"scheduledFor": alert.ScheduledFor,
	})
	return alert, true, q.recordQueued(ctx, alert)
}

// deduplicated re-records the audit event of an existing alert. The event id
// is derived from the alert, so this only appends if an earlier attempt lost it.
func (q *Queue) deduplicated(ctx context.Context, existing *models.Alert) (*models.Alert, bool, error) {
	metrics.AlertsEnqueued.WithLabelValues(string(existing.Type), metrics.OutcomeDuplicate).Inc()
	q.logger.Debug("alert deduplicated", map[string]interface{}{
		"alertId":  existing.ID,
		"dedupKey": *existing.DedupKey,
	})
	return existing, false, q.recordQueued(ctx, existing)
}

func (q *Queue) recordQueued(ctx context.Context, alert *models.Alert) error {
	if q.audit == nil {
		return nil
	}
	evt := models.NewEvent(ids.Derived(alert.ID, string(models.EventAlertQueued)), alert.ARID, alert.CreatedAt, models.SystemActor,
		models.AlertQueued{
			AlertID:      alert.ID,
			AlertType:    alert.Type,
			Role:         alert.Role,
			Priority:     alert.Priority,
			ScheduledFor: alert.ScheduledFor,
			DedupKey:     alert.DedupKey,
		})
	return q.audit.RecordAudit(ctx, evt)
}

func (q *Queue) build(p EnqueueParams) (*models.Alert, error) {
	now := q.now()

	priority := p.Type.DefaultPriority()
	if p.Priority != nil {
		priority = *p.Priority
	}
	scheduled := now
	if p.ScheduledFor != nil {
		scheduled = *p.ScheduledFor
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultMaxAttempts
	}

	tmpl := p.Template
	if tmpl == "" {
		if q.templates == nil {
			return nil, apperrors.NewValidationError("alert template is required")
		}
		body, err := q.templates.Body(string(p.Type), string(p.Role))
		if err != nil {
			return nil, apperrors.NewValidationError(err.Error())
		}
		tmpl = body
	}

	id := q.newID()
	var dedup *string
	if p.DedupKey != "" {
		key := p.DedupKey
		dedup = &key
		id = ids.Derived("alert", key)
	}

	data := make(map[string]string, len(p.Data))
	for k, v := range p.Data {
		data[k] = v
	}

	return &models.Alert{
		ID:             id,
		ARID:           p.ARID,
		Type:           p.Type,
		Role:           p.Role,
		Priority:       priority,
		Address:        p.Address,
		Template:       tmpl,
		Data:           data,
		Status:         models.AlertQueuedStatus,
		MaxAttempts:    maxAttempts,
		ScheduledFor:   scheduled,
		DedupKey:       dedup,
		TriggerEventID: p.TriggerEventID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func checkParams(p EnqueueParams) error {
	switch {
	case p.ARID == "":
		return apperrors.NewValidationError("alert ar id is required")
	case !p.Type.Valid():
		return apperrors.NewValidationErrorf("unknown alert type %q", p.Type)
	case !p.Role.Valid():
		return apperrors.NewValidationErrorf("unknown alert role %q", p.Role)
	case p.Address.Channel == "" || p.Address.Value == "":
		return apperrors.NewValidationError("alert address is required")
	}
	return nil
}

// Backoff is the delay before the next attempt after attempts failures:
// base * 2^(attempts-1).
func Backoff(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return base << (attempts - 1)
}
