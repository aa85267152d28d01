package models

import "time"

// EventType names an outbound workflow event
type EventType string

// Event types
const (
	EventCaseStatusChanged             EventType = "CaseStatusChanged"
	EventInterrogationFeedbackRecorded EventType = "InterrogationFeedbackRecorded"
	EventPaymentSettled                EventType = "PaymentSettled"
)

// Event is published after a transition commits. Consumers dedupe on ID.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	EntityID   string    `json:"entityId"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`

	// CaseStatusChanged
	From CaseStatus `json:"from,omitempty"`
	To   CaseStatus `json:"to,omitempty"`

	// InterrogationFeedbackRecorded
	Decision    Decision `json:"decision,omitempty"`
	ChiefAgrees *bool    `json:"chiefAgrees,omitempty"`

	// PaymentSettled
	Kind PaymentKind `json:"kind,omitempty"`

	// Recipients are user ids the event concerns (creator, complainants). Not part of the
	// dedupe key.
	Recipients []string `json:"recipients,omitempty"`
}
