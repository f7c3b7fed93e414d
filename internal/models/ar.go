// internal/models/ar.go
package models

import (
	"time"

	"ar-ledger/internal/common/dates"

	"github.com/shopspring/decimal"
)

// ARStatus is the lifecycle status of a receivable.
type ARStatus string

const (
	StatusPending    ARStatus = "PENDING"
	StatusOverdue    ARStatus = "OVERDUE"
	StatusPaid       ARStatus = "PAID"
	StatusWrittenOff ARStatus = "WRITTEN_OFF"
)

// Valid reports whether s is one of the closed set of statuses.
func (s ARStatus) Valid() bool {
	switch s {
	case StatusPending, StatusOverdue, StatusPaid, StatusWrittenOff:
		return true
	}
	return false
}

// AllStatuses lists every status in display order.
func AllStatuses() []ARStatus {
	return []ARStatus{StatusPending, StatusOverdue, StatusPaid, StatusWrittenOff}
}

// Money is a decimal amount with an ISO currency code.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney parses amount as a decimal string.
func NewMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: d, Currency: currency}, nil
}

// MustMoney is NewMoney for literals; it panics on a malformed amount.
func MustMoney(amount, currency string) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Equal compares value and currency.
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}

// Address is where a notification is delivered. It never identifies a party.
type Address struct {
	Channel string `json:"channel"`
	Value   string `json:"value"`
}

// AR is the materialized snapshot of one receivable, always derivable by
// folding its event stream.
type AR struct {
	ID               string     `json:"id"`
	BillableEntityID string     `json:"billableEntityId"`
	CustomerName     string     `json:"customerName"`
	Zone             string     `json:"zone,omitempty"`
	Amount           Money      `json:"amount"`
	Status           ARStatus   `json:"status"`
	InvoiceDate      time.Time  `json:"invoiceDate"`
	DueDate          time.Time  `json:"dueDate"`
	// BillingDay is the day of month the recurring terms bill on. Month-end
	// clamping moves DueDate, never BillingDay.
	BillingDay       int        `json:"billingDay,omitempty"`
	PaidDate         *time.Time `json:"paidDate,omitempty"`
	AssignedSalesID  *string    `json:"assignedSalesId,omitempty"`
	CustomerAddress  *Address   `json:"customerAddress,omitempty"`
	ManagerAddress   *Address   `json:"managerAddress,omitempty"`

	CreatedAt   time.Time `json:"createdAt"`
	LastEventID string    `json:"lastEventId"`
	LastEventAt time.Time `json:"lastEventAt"`
	EventCount  int       `json:"eventCount"`
	Version     int64     `json:"version"`
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
// PeriodDue returns the due date n billing periods after this receivable's.
func (a *AR) PeriodDue(n int) time.Time {
	return dates.MonthDay(a.DueDate, n, a.BillingDay)
}

func (a *AR) Clone() *AR {
	if a == nil {
		return nil
	}
	c := *a
	if a.PaidDate != nil {
		t := *a.PaidDate
		c.PaidDate = &t
	}
	if a.AssignedSalesID != nil {
		s := *a.AssignedSalesID
		c.AssignedSalesID = &s
	}
	if a.CustomerAddress != nil {
		addr := *a.CustomerAddress
		c.CustomerAddress = &addr
	}
	if a.ManagerAddress != nil {
		addr := *a.ManagerAddress
		c.ManagerAddress = &addr
	}
	return &c
}

// Open reports whether the receivable still expects a payment.
func (a *AR) Open() bool {
	return a.Status == StatusPending || a.Status == StatusOverdue
}
