// internal/workers/delivery/config.go
package delivery

import (
	"time"

	"ar-ledger/internal/common/config"
)

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	BaseDelay    time.Duration
	SendTimeout  time.Duration
	// ReclaimAfter is how long a claim may stay PROCESSING before the next
	// poll settles it as a failed attempt. Never shorter than SendTimeout
	// plus a minute.
	ReclaimAfter time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		PollInterval: 10 * time.Second,
		BatchSize:    50,
		BaseDelay:    5 * time.Minute,
		SendTimeout:  30 * time.Second,
		ReclaimAfter: 5 * time.Minute,
	}
}

func (c *Config) reclaimAfter() time.Duration {
	if floor := c.SendTimeout + time.Minute; c.ReclaimAfter < floor {
		return floor
	}
	return c.ReclaimAfter
}

func LoadConfig(cfg *config.Config) *Config {
	out := DefaultConfig()
	if cfg.Delivery.PollInterval > 0 {
		out.PollInterval = config.GetDuration(cfg.Delivery.PollInterval)
	}
	if cfg.Delivery.BatchSize > 0 {
		out.BatchSize = cfg.Delivery.BatchSize
	}
	if cfg.Delivery.BaseDelay > 0 {
		out.BaseDelay = config.GetDuration(cfg.Delivery.BaseDelay)
	}
	if cfg.Delivery.SendTimeout > 0 {
		out.SendTimeout = config.GetDuration(cfg.Delivery.SendTimeout)
	}
	if cfg.Delivery.ReclaimAfter > 0 {
		out.ReclaimAfter = config.GetDuration(cfg.Delivery.ReclaimAfter)
	}
	return out
}
