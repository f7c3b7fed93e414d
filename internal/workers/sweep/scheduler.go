// internal/workers/sweep/scheduler.go
package sweep

import (
	"context"
	"sync"
	"time"

	"ar-ledger/internal/common/dates"
	"ar-ledger/internal/common/logger"
	"ar-ledger/internal/common/metrics"
)

// Scheduler fires the sweep once per calendar day, at or after RunAtHour in
// the configured location. A day missed while the process was down is swept
// on the first check after restart. A failed day is retried with a doubling
// backoff rather than on every check.
type Scheduler struct {
	config  *Config
	handler *Handler
	locker  Locker
	logger  logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastDay time.Time

	retryDay   time.Time
	retryAt    time.Time
	retryCount int
}

type SchedulerOption func(*Scheduler)

func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(cfg *Config, handler *Handler, locker Locker, log logger.Logger, opts ...SchedulerOption) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if locker == nil {
		locker = NewLocalLock()
	}
	s := &Scheduler{
		config:  cfg,
		handler: handler,
		locker:  locker,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.config.CheckInterval)
		defer ticker.Stop()

		s.logger.Info("sweep scheduler started", map[string]interface{}{
			"runAtHour":     s.config.RunAtHour,
			"location":      s.config.Location.String(),
			"checkInterval": s.config.CheckInterval.String(),
		})
		for {
			s.tick(ctx)
			select {
			case <-ctx.Done():
				s.logger.Info("sweep scheduler stopped", nil)
				return
			case <-ticker.C:
			}
		}
	}(s.done)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	if now.In(s.config.Location).Hour() < s.config.RunAtHour {
		return
	}
	today := dates.Today(now, s.config.Location)
	if s.backingOff(today, now) {
		return
	}

	report, err := s.RunOnce(ctx)
	if ctx.Err() != nil {
		return
	}
	switch {
	case err != nil:
		wait := s.scheduleRetry(today, now)
		s.logger.Error("sweep run failed", map[string]interface{}{
			"error":   err.Error(),
			"retryIn": wait.String(),
		})
	case report != nil && report.Failures > 0:
		wait := s.scheduleRetry(today, now)
		s.logger.Warn("sweep run incomplete", map[string]interface{}{
			"failures": report.Failures,
			"retryIn":  wait.String(),
		})
	default:
		s.mu.Lock()
		s.retryCount = 0
		s.retryAt = time.Time{}
		s.mu.Unlock()
	}
}

// backingOff reports whether a failed run of today is still waiting out its
// backoff. A new day clears the backoff.
func (s *Scheduler) backingOff(today, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !dates.Same(s.retryDay, today) {
		s.retryDay = today
		s.retryCount = 0
		s.retryAt = time.Time{}
		return false
	}
	return now.Before(s.retryAt)
}

func (s *Scheduler) scheduleRetry(today, now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !dates.Same(s.retryDay, today) {
		s.retryDay = today
		s.retryCount = 0
	}
	wait := s.config.RetryBackoff
	for i := 0; i < s.retryCount && wait < s.config.RetryBackoffMax; i++ {
		wait *= 2
	}
	if s.config.RetryBackoffMax > 0 && wait > s.config.RetryBackoffMax {
		wait = s.config.RetryBackoffMax
	}
	s.retryCount++
	s.retryAt = now.Add(wait)
	return wait
}

// RunOnce sweeps today unless this process or another already finished it.
// The day is only marked complete when every step succeeded, so a partial
// run is retried by a later check once its backoff has passed.
func (s *Scheduler) RunOnce(ctx context.Context) (*Report, error) {
	now := s.now()
	today := dates.Today(now, s.config.Location)
	skipped := &Report{Today: dates.Format(today), Skipped: true}

	s.mu.Lock()
	ranToday := dates.Same(s.lastDay, today)
	s.mu.Unlock()
	if ranToday {
		return skipped, nil
	}

	finished, err := s.locker.Completed(ctx, today)
	if err != nil {
		return nil, err
	}
	if finished {
		s.markRan(today)
		return skipped, nil
	}

	token, ok, err := s.locker.Acquire(ctx, today)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.SweepRuns.WithLabelValues(metrics.OutcomeSkipped).Inc()
		s.logger.Debug("sweep lock held elsewhere", map[string]interface{}{"today": skipped.Today})
		return skipped, nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), today, token); err != nil {
			s.logger.Warn("sweep lock release failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	report, err := s.handler.Run(ctx, now)
	if err != nil || report.Failures > 0 {
		return report, err
	}
	if err := s.locker.MarkCompleted(ctx, today); err != nil {
		return report, err
	}
	s.markRan(today)
	return report, nil
}

func (s *Scheduler) markRan(day time.Time) {
	s.mu.Lock()
	s.lastDay = day
	s.mu.Unlock()
}
