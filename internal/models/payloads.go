// internal/models/payloads.go
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the closed union of event bodies. Each variant reports the kind
// it belongs to; DecodePayload is the only place raw JSON becomes a variant.
type Payload interface {
	Kind() EventKind
}

type ARCreated struct {
	BillableEntityID string    `json:"billableEntityId"`
	CustomerName     string    `json:"customerName"`
	Zone             string    `json:"zone,omitempty"`
	Amount           Money     `json:"amount"`
	InvoiceDate      time.Time `json:"invoiceDate"`
	DueDate          time.Time `json:"dueDate"`
	BillingDay       int       `json:"billingDay,omitempty"`
	AssignedSalesID  *string   `json:"assignedSalesId,omitempty"`
	CustomerAddress  *Address  `json:"customerAddress,omitempty"`
	ManagerAddress   *Address  `json:"managerAddress,omitempty"`
	// Status is recorded as supplied but replay always starts at PENDING.
	Status       ARStatus `json:"status,omitempty"`
	Source       string   `json:"source,omitempty"`
	PreviousARID *string  `json:"previousArId,omitempty"`
}

type StatusChanged struct {
	From   ARStatus `json:"from"`
	To     ARStatus `json:"to"`
	Reason string   `json:"reason,omitempty"`
}

type PaymentVerified struct {
	PaidAmount Money     `json:"paidAmount"`
	PaidDate   time.Time `json:"paidDate"`
	Reference  string    `json:"reference,omitempty"`
}

type DueDateChanged struct {
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	Reason string    `json:"reason,omitempty"`
}

type FollowUpLogged struct {
	Notes          string     `json:"notes"`
	NextFollowUpOn *time.Time `json:"nextFollowUpOn,omitempty"`
}

type AlertQueued struct {
	AlertID      string    `json:"alertId"`
	AlertType    AlertType `json:"alertType"`
	Role         Role      `json:"role"`
	Priority     int       `json:"priority"`
	ScheduledFor time.Time `json:"scheduledFor"`
	DedupKey     *string   `json:"dedupKey,omitempty"`
}

type AlertSent struct {
	AlertID   string `json:"alertId"`
	Attempt   int    `json:"attempt"`
	ReceiptID string `json:"receiptId,omitempty"`
}

// AlertFailed is appended for every failed attempt. Terminal failures are the
// ones with Retrying false; the alert row carries status FAILED.
type AlertFailed struct {
	AlertID       string     `json:"alertId"`
	Attempt       int        `json:"attempt"`
	Error         string     `json:"error"`
	Retrying      bool       `json:"retrying"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
}

// Unknown keeps the raw body of a kind this build does not understand.
type Unknown struct {
	EventKind EventKind
	Raw       json.RawMessage
}

func (ARCreated) Kind() EventKind       { return EventARCreated }
func (StatusChanged) Kind() EventKind   { return EventStatusChanged }
func (PaymentVerified) Kind() EventKind { return EventPaymentVerified }
func (DueDateChanged) Kind() EventKind  { return EventDueDateChanged }
func (FollowUpLogged) Kind() EventKind  { return EventFollowUpLogged }
func (AlertQueued) Kind() EventKind     { return EventAlertQueued }
func (AlertSent) Kind() EventKind       { return EventAlertSent }
func (AlertFailed) Kind() EventKind     { return EventAlertFailed }
func (u Unknown) Kind() EventKind       { return u.EventKind }

// EncodePayload renders a payload to JSON. Unknown payloads round-trip their raw body.
func EncodePayload(p Payload) ([]byte, error) {
	switch v := p.(type) {
	case nil:
		return []byte("{}"), nil
	case Unknown:
		if len(v.Raw) == 0 {
			return []byte("{}"), nil
		}
		return v.Raw, nil
	default:
		return json.Marshal(v)
	}
}

// DecodePayload turns a stored body into its typed variant.
func DecodePayload(kind EventKind, raw []byte) (Payload, error) {
	switch kind {
	case EventARCreated:
		return decodeInto[ARCreated](raw)
	case EventStatusChanged:
		return decodeInto[StatusChanged](raw)
	case EventPaymentVerified:
		return decodeInto[PaymentVerified](raw)
	case EventDueDateChanged:
		return decodeInto[DueDateChanged](raw)
	case EventFollowUpLogged:
		return decodeInto[FollowUpLogged](raw)
	case EventAlertQueued:
		return decodeInto[AlertQueued](raw)
	case EventAlertSent:
		return decodeInto[AlertSent](raw)
	case EventAlertFailed:
		return decodeInto[AlertFailed](raw)
	default:
		return Unknown{EventKind: kind, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func decodeInto[T Payload](raw []byte) (Payload, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", v.Kind(), err)
	}
	return v, nil
}
