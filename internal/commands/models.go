// internal/commands/models.go
package commands

import (
	"time"

	"ar-ledger/internal/models"
)

// CreateRequest opens a receivable. ID and EventID are optional; when ID is
// supplied, repeating the request is idempotent.
type CreateRequest struct {
	ID               string          `json:"id,omitempty"`
	BillableEntityID string          `json:"billableEntityId"`
	CustomerName     string          `json:"customerName"`
	Zone             string          `json:"zone,omitempty"`
	Amount           models.Money    `json:"amount"`
	InvoiceDate      time.Time       `json:"invoiceDate"`
	DueDate          time.Time       `json:"dueDate"`
	// BillingDay defaults to the due date's day of month.
	BillingDay       int             `json:"billingDay,omitempty"`
	AssignedSalesID  *string         `json:"assignedSalesId,omitempty"`
	CustomerAddress  *models.Address `json:"customerAddress,omitempty"`
	ManagerAddress   *models.Address `json:"managerAddress,omitempty"`
	Source           string          `json:"source,omitempty"`
	PreviousARID     *string         `json:"previousArId,omitempty"`
	Actor            models.Actor    `json:"actor"`
}

type ChangeStatusRequest struct {
	ARID   string          `json:"arId"`
	Status models.ARStatus `json:"status"`
	Reason string          `json:"reason,omitempty"`
	Actor  models.Actor    `json:"actor"`
	// EventID makes a repeated request collide on identity. Random if empty.
	EventID string `json:"eventId,omitempty"`
}

type LogFollowUpRequest struct {
	ARID           string       `json:"arId"`
	Notes          string       `json:"notes"`
	NextFollowUpOn *time.Time   `json:"nextFollowUpOn,omitempty"`
	Actor          models.Actor `json:"actor"`
}

type VerifyPaymentRequest struct {
	ARID       string       `json:"arId"`
	PaidAmount models.Money `json:"paidAmount"`
	PaidDate   time.Time    `json:"paidDate"`
	Reference  string       `json:"reference,omitempty"`
	Actor      models.Actor `json:"actor"`
}

type ChangeDueDateRequest struct {
	ARID    string       `json:"arId"`
	DueDate time.Time    `json:"dueDate"`
	Reason  string       `json:"reason,omitempty"`
	Actor   models.Actor `json:"actor"`
}

// PaymentResult is the outcome of VerifyPayment. NextARErr reports a failure
// of the follow-on creation, which never fails the payment itself.
type PaymentResult struct {
	AR        *models.AR
	NextAR    *models.AR
	NextARErr error
}

// RebuildReport summarizes a full rebuild from the log.
type RebuildReport struct {
	Subjects int
	Events   int
	Failed   map[string]error
	Warnings []string
}
