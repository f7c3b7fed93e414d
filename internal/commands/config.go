// internal/commands/config.go
package commands

import (
	"time"

	"ar-ledger/internal/common/config"
)

// Config holds the command-layer settings.
type Config struct {
	// Location decides which calendar day "today" is.
	Location *time.Location
	// DueDatePastLimitDays rejects due-date changes further back than this.
	DueDatePastLimitDays int
	// AuditRetries bounds reload-and-retry when folding audit events.
	AuditRetries int
}

func DefaultConfig() Config {
	return Config{
		Location:             time.UTC,
		DueDatePastLimitDays: 30,
		AuditRetries:         3,
	}
}

// ConfigFrom maps the application configuration onto the command layer.
func ConfigFrom(cfg *config.Config) Config {
	out := DefaultConfig()
	out.Location = cfg.Location()
	if cfg.Ledger.DueDatePastLimitDays > 0 {
		out.DueDatePastLimitDays = cfg.Ledger.DueDatePastLimitDays
	}
	if cfg.Ledger.AuditRetries > 0 {
		out.AuditRetries = cfg.Ledger.AuditRetries
	}
	return out
}
