package audit

import "time"

// Event is an immutable, append-only record of something that happened to a call.
//
// Invariants:
// - Events are never updated or deleted (enforced by a trigger on call_events).
// - call_sid is required; every event belongs to one carrier call.
// - Recording is best-effort; do not block call flows on audit failures.
type Event struct {
	ID      string    `json:"id" db:"id"`
	CallSID string    `json:"call_sid" db:"call_sid"`
	Type    EventType `json:"type" db:"type"`

	// Actor is the operator user id for operator actions, empty for system events.
	Actor string `json:"actor,omitempty" db:"actor"`

	// Message is a short human-readable description for ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeLifecycle     EventType = "lifecycle"
	EventTypeFunction      EventType = "function_invoked"
	EventTypeCarrierStatus EventType = "carrier_status"
	EventTypeRecording     EventType = "recording"
	EventTypeDial          EventType = "dial"
	EventTypeOperator      EventType = "operator_action"
)
