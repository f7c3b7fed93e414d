// internal/models/event.go
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind discriminates the payload carried by an Event.
type EventKind string

const (
	EventARCreated       EventKind = "AR_CREATED"
	EventStatusChanged   EventKind = "STATUS_CHANGED"
	EventPaymentVerified EventKind = "PAYMENT_VERIFIED"
	EventDueDateChanged  EventKind = "DUE_DATE_CHANGED"
	EventFollowUpLogged  EventKind = "FOLLOW_UP_LOGGED"
	EventAlertQueued     EventKind = "ALERT_QUEUED"
	EventAlertSent       EventKind = "ALERT_SENT"
	EventAlertFailed     EventKind = "ALERT_FAILED"
)

// CurrentSchemaVersion is stamped on every newly built event.
const CurrentSchemaVersion = 1

// ActorKind identifies who caused an event.
type ActorKind string

const (
	ActorSystem  ActorKind = "SYSTEM"
	ActorManager ActorKind = "MANAGER"
	ActorSales   ActorKind = "SALES"
)

// Valid reports whether k is a known actor role.
func (k ActorKind) Valid() bool {
	switch k {
	case ActorSystem, ActorManager, ActorSales:
		return true
	}
	return false
}

type Actor struct {
	Kind   ActorKind `json:"kind"`
	UserID string    `json:"userId,omitempty"`
}

// SystemActor is used by the sweep and other scheduled processes.
var SystemActor = Actor{Kind: ActorSystem}

// Event is an immutable fact about one AR. Seq is assigned by the store and
// only used as an ordering tie-breaker; it is not part of the identity.
type Event struct {
	ID            string    `json:"id"`
	ARID          string    `json:"arId"`
	Kind          EventKind `json:"kind"`
	OccurredAt    time.Time `json:"occurredAt"`
	Actor         Actor     `json:"actor"`
	SchemaVersion int       `json:"schemaVersion"`
	Payload       Payload   `json:"-"`
	Seq           int64     `json:"seq,omitempty"`
}

// NewEvent builds an event whose kind is taken from the payload.
func NewEvent(id, arID string, at time.Time, actor Actor, payload Payload) Event {
	return Event{
		ID:            id,
		ARID:          arID,
		Kind:          payload.Kind(),
		OccurredAt:    at,
		Actor:         actor,
		SchemaVersion: CurrentSchemaVersion,
		Payload:       payload,
	}
}

type eventJSON struct {
	ID            string          `json:"id"`
	ARID          string          `json:"arId"`
	Kind          EventKind       `json:"kind"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Actor         Actor           `json:"actor"`
	SchemaVersion int             `json:"schemaVersion"`
	Payload       json.RawMessage `json:"payload"`
	Seq           int64           `json:"seq,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	raw, err := EncodePayload(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventJSON{
		ID:            e.ID,
		ARID:          e.ARID,
		Kind:          e.Kind,
		OccurredAt:    e.OccurredAt,
		Actor:         e.Actor,
		SchemaVersion: e.SchemaVersion,
		Payload:       raw,
		Seq:           e.Seq,
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var j eventJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	payload, err := DecodePayload(j.Kind, j.Payload)
	if err != nil {
		return fmt.Errorf("event %s: %w", j.ID, err)
	}
	*e = Event{
		ID:            j.ID,
		ARID:          j.ARID,
		Kind:          j.Kind,
		OccurredAt:    j.OccurredAt,
		Actor:         j.Actor,
		SchemaVersion: j.SchemaVersion,
		Payload:       payload,
		Seq:           j.Seq,
	}
	return nil
}
