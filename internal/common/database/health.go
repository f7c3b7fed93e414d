// internal/common/database/health.go
package database

import (
	"context"
	"fmt"
)

// Pinger is any backing connection that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checks maps a dependency name to its pinger; nil entries are skipped.
type Checks map[string]Pinger

// Ready pings every configured dependency and reports the first failure.
func (c Checks) Ready(ctx context.Context) error {
	for name, p := range c {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s not ready: %w", name, err)
		}
	}
	return nil
}
