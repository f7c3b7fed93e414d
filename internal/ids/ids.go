// Package ids issues identities. Random ids are used for caller-initiated
// facts; derived ids are used for facts the system may produce more than once
// (sweeps, next-period creation) so that a repeat collides on identity.
package ids

import (
	"strings"
	"time"

	"ar-ledger/internal/common/dates"

	"github.com/google/uuid"
)

// namespace scopes every derived id issued by the ledger.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:ar-ledger"))

// New returns a random id.
func New() string {
	return uuid.New().String()
}

// Derived returns the same id for the same parts, always.
func Derived(parts ...string) string {
	return uuid.NewSHA1(namespace, []byte(strings.Join(parts, "|"))).String()
}

// ForPeriod is the AR id for a billable entity's obligation due on dueDate.
func ForPeriod(billableEntityID string, dueDate time.Time) string {
	return Derived("ar", billableEntityID, dates.Format(dueDate))
}

// CreationEvent is the id of the AR_CREATED event for arID.
func CreationEvent(arID string) string {
	return Derived("event", arID, "AR_CREATED")
}
