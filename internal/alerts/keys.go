package alerts

import (
	"fmt"
	"time"

	"ar-ledger/internal/common/dates"
	"ar-ledger/internal/models"
)

// DedupKey identifies one occurrence of (AR, type, role, due date).
func DedupKey(arID string, t models.AlertType, role models.Role, due time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", arID, t, role, dates.Format(due))
}

// EscalationKey adds the overdue day count so each day of the escalation
// window is sent once.
func EscalationKey(arID string, role models.Role, due time.Time, daysOverdue int) string {
	return fmt.Sprintf("%s:d%d", DedupKey(arID, models.AlertEscalation, role, due), daysOverdue)
}
