// internal/workers/sweep/config.go
package sweep

import (
	"time"

	"ar-ledger/internal/common/config"
	"ar-ledger/internal/models"
)

type Config struct {
	// Location decides which calendar day a timestamp belongs to.
	Location      *time.Location
	RunAtHour     int
	CheckInterval time.Duration
	PreAlertDays  int
	HorizonMonths int
	LockTTL       time.Duration
	// RetryBackoff spaces retries of a failed day, doubling up to RetryBackoffMax.
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	// MaxAttempts is stamped on every alert the sweep enqueues.
	MaxAttempts int
	// EscalationFrom and EscalationTo bound the overdue days that escalate.
	EscalationFrom int
	EscalationTo   int
	// OverdueNoticeDay is the overdue day that gets the single OVERDUE alert.
	OverdueNoticeDay int
}

func DefaultConfig() *Config {
	return &Config{
		Location:         time.UTC,
		RunAtHour:        6,
		CheckInterval:    time.Minute,
		PreAlertDays:     3,
		HorizonMonths:    3,
		LockTTL:          30 * time.Minute,
		RetryBackoff:     5 * time.Minute,
		RetryBackoffMax:  time.Hour,
		MaxAttempts:      models.DefaultMaxAttempts,
		EscalationFrom:   4,
		EscalationTo:     7,
		OverdueNoticeDay: 7,
	}
}

func LoadConfig(cfg *config.Config) *Config {
	out := DefaultConfig()
	out.Location = cfg.Location()
	out.RunAtHour = cfg.Sweep.RunAtHour
	if cfg.Sweep.CheckInterval > 0 {
		out.CheckInterval = config.GetDuration(cfg.Sweep.CheckInterval)
	}
	if cfg.Sweep.PreAlertDays > 0 {
		out.PreAlertDays = cfg.Sweep.PreAlertDays
	}
	if cfg.Sweep.HorizonMonths > 0 {
		out.HorizonMonths = cfg.Sweep.HorizonMonths
	}
	if cfg.Sweep.LockTTL > 0 {
		out.LockTTL = config.GetDuration(cfg.Sweep.LockTTL)
	}
	if cfg.Sweep.RetryBackoff > 0 {
		out.RetryBackoff = config.GetDuration(cfg.Sweep.RetryBackoff)
	}
	if cfg.Sweep.RetryBackoffMax > 0 {
		out.RetryBackoffMax = config.GetDuration(cfg.Sweep.RetryBackoffMax)
	}
	if cfg.Delivery.MaxAttempts > 0 {
		out.MaxAttempts = cfg.Delivery.MaxAttempts
	}
	return out
}
