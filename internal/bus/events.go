// Package bus provides the in-process audit stream for the Divan decision
// engine. Every decision, recorded outcome, and training pass is published
// here; subscribers (the websocket observer, tests, future tooling) watch
// the engine work without touching its state.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies an audit event.
type EventType string

// Audit event types. Subscribe with EventAny to receive everything.
const (
	// EventDecisionRecorded fires after a decision record is persisted.
	EventDecisionRecorded EventType = "decision.recorded"

	// EventOutcomeRecorded fires when a real-world outcome is recorded
	// (or corrected) for a past decision.
	EventOutcomeRecorded EventType = "outcome.recorded"

	// EventLearningTrained fires after a prior-cache training pass.
	EventLearningTrained EventType = "learning.trained"

	// EventCouncilRedLine fires when any minister triggers a red line.
	EventCouncilRedLine EventType = "council.red_line"

	// EventAdvisorOmitted fires when a minister is dropped from a vote
	// (error, timeout, or panic).
	EventAdvisorOmitted EventType = "advisor.omitted"

	// EventAny is the wildcard subscription type.
	EventAny EventType = ""
)

// Event is one entry in the audit stream. Payload must be JSON-marshalable;
// it carries the record the event announces (decision, outcome, report).
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	DecisionID string    `json:"decision_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Payload    any       `json:"payload,omitempty"`
}

// NewEvent creates a timestamped event with a fresh ID.
func NewEvent(t EventType) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now(),
	}
}
