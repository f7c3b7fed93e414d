// internal/models/alert.go
package models

import "time"

// AlertType classifies a notification intent.
type AlertType string

const (
	AlertPreAlert   AlertType = "PRE_ALERT"
	AlertDue        AlertType = "DUE"
	AlertOverdue    AlertType = "OVERDUE"
	AlertEscalation AlertType = "ESCALATION"
)

// DefaultPriority ranks classifications: escalations jump the queue, pre-alerts wait.
func (t AlertType) DefaultPriority() int {
	switch t {
	case AlertPreAlert:
		return 1
	case AlertDue:
		return 2
	case AlertOverdue:
		return 3
	case AlertEscalation:
		return 4
	}
	return 0
}

func (t AlertType) Valid() bool {
	return t.DefaultPriority() > 0
}

// Role is the audience of an alert.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleManager  Role = "MANAGER"
	RoleSales    Role = "SALES"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleManager, RoleSales:
		return true
	}
	return false
}

// AlertStatus is the delivery lifecycle of an alert.
type AlertStatus string

const (
	AlertQueuedStatus     AlertStatus = "QUEUED"
	AlertProcessingStatus AlertStatus = "PROCESSING"
	AlertSentStatus       AlertStatus = "SENT"
	AlertFailedStatus     AlertStatus = "FAILED"
)

// DefaultMaxAttempts bounds delivery retries when the caller does not override it.
const DefaultMaxAttempts = 3

// Alert is a queued notification intent.
type Alert struct {
	ID             string            `json:"id"`
	ARID           string            `json:"arId"`
	Type           AlertType         `json:"type"`
	Role           Role              `json:"role"`
	Priority       int               `json:"priority"`
	Address        Address           `json:"address"`
	Template       string            `json:"template"`
	Data           map[string]string `json:"data,omitempty"`
	Status         AlertStatus       `json:"status"`
	Attempts       int               `json:"attempts"`
	MaxAttempts    int               `json:"maxAttempts"`
	ScheduledFor   time.Time         `json:"scheduledFor"`
	SentAt         *time.Time        `json:"sentAt,omitempty"`
	FailedAt       *time.Time        `json:"failedAt,omitempty"`
	LastError      *string           `json:"lastError,omitempty"`
	ReceiptID      *string           `json:"receiptId,omitempty"`
	DedupKey       *string           `json:"dedupKey,omitempty"`
	TriggerEventID string            `json:"triggerEventId,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy of the alert.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	if a.Data != nil {
		c.Data = make(map[string]string, len(a.Data))
		for k, v := range a.Data {
			c.Data[k] = v
		}
	}
	c.SentAt = cloneTime(a.SentAt)
	c.FailedAt = cloneTime(a.FailedAt)
	c.LastError = cloneString(a.LastError)
	c.ReceiptID = cloneString(a.ReceiptID)
	c.DedupKey = cloneString(a.DedupKey)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
