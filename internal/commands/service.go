// internal/commands/service.go
package commands

import (
	"context"
	"errors"
	"time"

	"ar-ledger/internal/common/dates"
	apperrors "ar-ledger/internal/common/errors"
	"ar-ledger/internal/common/logger"
	"ar-ledger/internal/common/metrics"
	"ar-ledger/internal/common/observability"
	"ar-ledger/internal/eventlog"
	"ar-ledger/internal/ids"
	"ar-ledger/internal/models"
	"ar-ledger/internal/replay"
	"ar-ledger/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

// Service is the lifecycle command layer. Each command validates, loads the
// current snapshot, appends one event and writes the snapshot conditioned on
// the version it read.
type Service struct {
	log       *eventlog.Log
	snapshots store.SnapshotStore
	logger    logger.Logger
	obs       *observability.Observability
	cfg       Config
	now       func() time.Time
	newID     func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

func WithObservability(o *observability.Observability) Option {
	return func(s *Service) { s.obs = o }
}

func NewService(log *eventlog.Log, snapshots store.SnapshotStore, lg logger.Logger, opts ...Option) *Service {
	s := &Service{
		log:       log,
		snapshots: snapshots,
		logger:    logger.Component(lg, "commands"),
		cfg:       DefaultConfig(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     ids.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.Location == nil {
		s.cfg.Location = time.UTC
	}
	if s.cfg.AuditRetries <= 0 {
		s.cfg.AuditRetries = 1
	}
	return s
}

// Now exposes the service clock so collaborators share one notion of time.
func (s *Service) Now() time.Time {
	return s.now()
}

// ==========================
// Commands
// ==========================

// Create appends AR_CREATED and inserts the initial snapshot (version 1).
// With a caller-supplied ID a repeat returns the existing snapshot.
func (s *Service) Create(ctx context.Context, req CreateRequest) (ar *models.AR, err error) {
	ctx, span := s.obs.StartSpan(ctx, "command.create")
	defer span.End()
	noop := false
	defer func() { s.record("create", noop, err) }()

	if err := createSchema.Check(req); err != nil {
		return nil, err
	}
	if !req.Amount.Amount.IsPositive() {
		return nil, apperrors.NewValidationError("amount must be positive")
	}
	if req.InvoiceDate.IsZero() || req.DueDate.IsZero() {
		return nil, apperrors.NewValidationError("invoice date and due date are required")
	}
	invoice, due := dates.Civil(req.InvoiceDate), dates.Civil(req.DueDate)
	if due.Before(invoice) {
		return nil, apperrors.NewValidationErrorf("due date %s is before invoice date %s", dates.Format(due), dates.Format(invoice))
	}
	billingDay := req.BillingDay
	if billingDay == 0 {
		billingDay = due.Day()
	}

	arID := req.ID
	if arID == "" {
		arID = s.newID()
	}
	evt := models.NewEvent(ids.CreationEvent(arID), arID, s.now(), req.Actor, models.ARCreated{
		BillableEntityID: req.BillableEntityID,
		CustomerName:     req.CustomerName,
		Zone:             req.Zone,
		Amount:           req.Amount,
		InvoiceDate:      invoice,
		DueDate:          due,
		BillingDay:       billingDay,
		AssignedSalesID:  req.AssignedSalesID,
		CustomerAddress:  req.CustomerAddress,
		ManagerAddress:   req.ManagerAddress,
		Status:           models.StatusPending,
		Source:           req.Source,
		PreviousARID:     req.PreviousARID,
	})

	outcome, err := s.log.Append(ctx, evt)
	if err != nil {
		return nil, err
	}
	if outcome == eventlog.DuplicateIgnored {
		noop = true
		return s.Get(ctx, arID)
	}

	ar, err = replay.Init(evt)
	if err != nil {
		return nil, err
	}
	if err := s.snapshots.Insert(ctx, ar); err != nil {
		return nil, s.afterAppendFailure(ctx, arID, 0, err)
	}

	s.logger.Info("ar created", map[string]interface{}{
		"arId":             ar.ID,
		"billableEntityId": ar.BillableEntityID,
		"dueDate":          dates.Format(ar.DueDate),
		"amount":           ar.Amount.String(),
	})
	return ar, nil
}

// ChangeStatus is a no-op when the AR already has the requested status.
func (s *Service) ChangeStatus(ctx context.Context, req ChangeStatusRequest) (ar *models.AR, err error) {
	ctx, span := s.obs.StartSpan(ctx, "command.change_status", attribute.String("arId", req.ARID))
	defer span.End()
	noop := false
	defer func() { s.record("change_status", noop, err) }()

	if err := changeStatusSchema.Check(req); err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, apperrors.NewInvalidStatusError(string(req.Status))
	}

	cur, err := s.load(ctx, req.ARID)
	if err != nil {
		return nil, err
	}
	if cur.Status == req.Status {
		noop = true
		return cur, nil
	}

	evtID := req.EventID
	if evtID == "" {
		evtID = s.newID()
	}
	evt := models.NewEvent(evtID, cur.ID, s.now(), req.Actor, models.StatusChanged{
		From:   cur.Status,
		To:     req.Status,
		Reason: req.Reason,
	})
	return s.commit(ctx, cur, evt)
}

// LogFollowUp records a contact note. Only bookkeeping fields change.
func (s *Service) LogFollowUp(ctx context.Context, req LogFollowUpRequest) (ar *models.AR, err error) {
	ctx, span := s.obs.StartSpan(ctx, "command.log_follow_up", attribute.String("arId", req.ARID))
	defer span.End()
	defer func() { s.record("log_follow_up", false, err) }()

	if err := followUpSchema.Check(req); err != nil {
		return nil, err
	}

	cur, err := s.load(ctx, req.ARID)
	if err != nil {
		return nil, err
	}

	payload := models.FollowUpLogged{Notes: req.Notes}
	if req.NextFollowUpOn != nil {
		next := dates.Civil(*req.NextFollowUpOn)
		payload.NextFollowUpOn = &next
	}
	return s.commit(ctx, cur, models.NewEvent(s.newID(), cur.ID, s.now(), req.Actor, payload))
}

// VerifyPayment marks the AR paid and then ensures the next period's AR
// exists. A failure creating the next AR is reported in the result and
// logged; it never fails the payment.
func (s *Service) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (res *PaymentResult, err error) {
	ctx, span := s.obs.StartSpan(ctx, "command.verify_payment", attribute.String("arId", req.ARID))
	defer span.End()
	defer func() { s.record("verify_payment", false, err) }()

	if err := verifyPaymentSchema.Check(req); err != nil {
		return nil, err
	}
	if req.PaidDate.IsZero() {
		return nil, apperrors.NewValidationError("paid date is required")
	}
	if !req.PaidAmount.Amount.IsPositive() {
		return nil, apperrors.NewValidationError("paid amount must be positive")
	}

	cur, err := s.load(ctx, req.ARID)
	if err != nil {
		return nil, err
	}
	if cur.Status == models.StatusPaid {
		return nil, apperrors.NewAlreadyPaidError(cur.ID)
	}

	evt := models.NewEvent(s.newID(), cur.ID, s.now(), req.Actor, models.PaymentVerified{
		PaidAmount: req.PaidAmount,
		PaidDate:   dates.Civil(req.PaidDate),
		Reference:  req.Reference,
	})
	paid, commitErr := s.commit(ctx, cur, evt)
	if commitErr != nil && !errors.Is(commitErr, apperrors.ErrConcurrentModification) {
		return nil, commitErr
	}

	// The payment event is durable from here on, even if the snapshot lost a race.
	res = &PaymentResult{AR: paid}
	next, _, nextErr := s.EnsurePeriod(ctx, cur, cur.PeriodDue(1), "payment")
	if nextErr != nil {
		res.NextARErr = nextErr
		s.logger.Error("next ar creation failed", map[string]interface{}{
			"arId":      cur.ID,
			"errorCode": string(apperrors.CodeOf(nextErr)),
			"error":     nextErr.Error(),
		})
	}
	res.NextAR = next
	return res, commitErr
}

// ChangeDueDate moves the due date. It is a no-op when the date is unchanged
// and rejects dates too far in the past.
func (s *Service) ChangeDueDate(ctx context.Context, req ChangeDueDateRequest) (ar *models.AR, err error) {
	ctx, span := s.obs.StartSpan(ctx, "command.change_due_date", attribute.String("arId", req.ARID))
	defer span.End()
	noop := false
	defer func() { s.record("change_due_date", noop, err) }()

	if err := changeDueDateSchema.Check(req); err != nil {
		return nil, err
	}
	if req.DueDate.IsZero() {
		return nil, apperrors.NewValidationError("due date is required")
	}
	due := dates.Civil(req.DueDate)
	today := dates.Today(s.now(), s.cfg.Location)
	if due.Before(dates.AddDays(today, -s.cfg.DueDatePastLimitDays)) {
		return nil, apperrors.NewValidationErrorf("due date %s is more than %d days in the past",
			dates.Format(due), s.cfg.DueDatePastLimitDays)
	}

	cur, err := s.load(ctx, req.ARID)
	if err != nil {
		return nil, err
	}
	if dates.Same(cur.DueDate, due) {
		noop = true
		return cur, nil
	}
	if due.Before(cur.InvoiceDate) {
		return nil, apperrors.NewValidationErrorf("due date %s is before invoice date %s",
			dates.Format(due), dates.Format(cur.InvoiceDate))
	}

	evt := models.NewEvent(s.newID(), cur.ID, s.now(), req.Actor, models.DueDateChanged{
		From:   cur.DueDate,
		To:     due,
		Reason: req.Reason,
	})
	return s.commit(ctx, cur, evt)
}

// EnsurePeriod makes sure an AR exists for template's billable entity due on
// dueDate, copying the template's recurring terms. It returns the existing or
// newly created AR and whether it was created. The AR id is derived from
// (billable entity, due date) so concurrent callers converge on one record.
func (s *Service) EnsurePeriod(ctx context.Context, template *models.AR, dueDate time.Time, source string) (*models.AR, bool, error) {
	due := dates.Civil(dueDate)
	existing, err := s.snapshots.FindByBillableAndDueDate(ctx, template.BillableEntityID, due)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	invoice := dates.AddMonthsClamped(template.InvoiceDate, monthsBetween(template.DueDate, due))
	if invoice.After(due) {
		invoice = due
	}
	prev := template.ID
	ar, err := s.Create(ctx, CreateRequest{
		ID:               ids.ForPeriod(template.BillableEntityID, due),
		BillableEntityID: template.BillableEntityID,
		CustomerName:     template.CustomerName,
		Zone:             template.Zone,
		Amount:           template.Amount,
		InvoiceDate:      invoice,
		DueDate:          due,
		BillingDay:       template.BillingDay,
		AssignedSalesID:  template.AssignedSalesID,
		CustomerAddress:  template.CustomerAddress,
		ManagerAddress:   template.ManagerAddress,
		Source:           source,
		PreviousARID:     &prev,
		Actor:            models.SystemActor,
	})
	if err != nil {
		return nil, false, err
	}
	return ar, true, nil
}

// RecordAudit appends an alert lifecycle event and folds its bookkeeping into
// the snapshot, reloading and retrying on version conflicts.
func (s *Service) RecordAudit(ctx context.Context, evt models.Event) error {
	outcome, err := s.log.Append(ctx, evt)
	if err != nil {
		return err
	}
	if outcome == eventlog.DuplicateIgnored {
		return nil
	}

	for attempt := 0; attempt < s.cfg.AuditRetries; attempt++ {
		cur, err := s.snapshots.Get(ctx, evt.ARID)
		if errors.Is(err, store.ErrNotFound) {
			_, err = s.Rebuild(ctx, evt.ARID)
			return err
		}
		if err != nil {
			return err
		}

		var next *models.AR
		if attempt == 0 && cur.LastEventID != evt.ID && !cur.LastEventAt.After(evt.OccurredAt) {
			next = cur.Clone()
			if err := replay.Apply(next, evt); err != nil {
				return err
			}
		} else {
			if next, err = s.derive(ctx, evt.ARID); err != nil {
				return err
			}
		}

		err = s.snapshots.Update(ctx, next, cur.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
	}

	s.logger.Error("audit fold exhausted retries; snapshot left for rebuild", map[string]interface{}{
		"arId":    evt.ARID,
		"eventId": evt.ID,
	})
	return apperrors.NewConcurrentModificationError(evt.ARID, -1)
}

// ==========================
// Helpers
// ==========================

// commit appends evt and writes the folded snapshot conditioned on cur.Version.
func (s *Service) commit(ctx context.Context, cur *models.AR, evt models.Event) (*models.AR, error) {
	outcome, err := s.log.Append(ctx, evt)
	if err != nil {
		return nil, err
	}
	if outcome == eventlog.DuplicateIgnored {
		// Appended earlier but possibly never projected.
		return s.Rebuild(ctx, cur.ID)
	}

	next := cur.Clone()
	if err := replay.Apply(next, evt); err != nil {
		return nil, err
	}
	if err := s.snapshots.Update(ctx, next, cur.Version); err != nil {
		return nil, s.afterAppendFailure(ctx, cur.ID, cur.Version, err)
	}
	return next, nil
}

// afterAppendFailure handles a snapshot write that failed after its event was
// durably appended. The log stays authoritative; one rebuild is attempted.
func (s *Service) afterAppendFailure(ctx context.Context, arID string, expected int64, err error) error {
	fields := map[string]interface{}{
		"arId":            arID,
		"expectedVersion": expected,
		"error":           err.Error(),
	}
	if _, healErr := s.Rebuild(ctx, arID); healErr != nil {
		fields["healError"] = healErr.Error()
		s.logger.Error("snapshot inconsistent with event log", fields)
	} else {
		s.logger.Warn("snapshot write failed after append; rebuilt from log", fields)
	}

	if errors.Is(err, store.ErrVersionConflict) {
		return apperrors.NewConcurrentModificationError(arID, expected)
	}
	return err
}

// load returns the snapshot, healing it from the log if only the log has it.
func (s *Service) load(ctx context.Context, arID string) (*models.AR, error) {
	ar, err := s.snapshots.Get(ctx, arID)
	if err == nil {
		return ar, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	ar, err = s.Rebuild(ctx, arID)
	if err != nil {
		return nil, err
	}
	s.logger.Warn("missing snapshot rebuilt on read", map[string]interface{}{"arId": arID})
	return ar, nil
}

func (s *Service) record(command string, noop bool, err error) {
	outcome := metrics.OutcomeOK
	switch {
	case noop && err == nil:
		outcome = metrics.OutcomeNoop
	case err == nil:
	case errors.Is(err, apperrors.ErrConcurrentModification):
		outcome = metrics.OutcomeConflict
	default:
		switch apperrors.GetErrorCategory(apperrors.CodeOf(err)) {
		case "VALIDATION", "BUSINESS_RULE":
			outcome = metrics.OutcomeRejected
		default:
			outcome = metrics.OutcomeError
		}
	}
	metrics.CommandsTotal.WithLabelValues(command, outcome).Inc()
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}
