// internal/workers/sweep/models.go
package sweep

// Step names, in execution order.
const (
	StepPromote   = "overdue_promotion"
	StepDue       = "due_alerts"
	StepOverdue   = "overdue_alerts"
	StepPreAlert  = "pre_alerts"
	StepHorizon   = "horizon"
)

// Report summarizes one sweep run.
type Report struct {
	Today string `json:"today"`
	// Skipped is set when the day was already swept or another instance holds the lock.
	Skipped bool `json:"skipped,omitempty"`

	Promoted     int `json:"promoted"`
	DueAlerts    int `json:"dueAlerts"`
	Overdue      int `json:"overdueAlerts"`
	Escalations  int `json:"escalationAlerts"`
	PreAlerts    int `json:"preAlerts"`
	Deduplicated int `json:"deduplicated"`
	Generated    int `json:"generated"`

	Failures int     `json:"failures"`
	Errors   []error `json:"-"`
}
