// internal/workers/delivery/models.go
package delivery

// Report summarizes one poll of the queue.
type Report struct {
	Picked  int `json:"picked"`
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
	// Skipped counts alerts another poller claimed first.
	Skipped int `json:"skipped"`
	// Reclaimed counts stale PROCESSING claims settled as failed attempts.
	Reclaimed int `json:"reclaimed"`
	// Errors holds every attempt error, including the ones that were rescheduled.
	Errors []error `json:"-"`
}
