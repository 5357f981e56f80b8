package models

import "time"

// EventType identifies the kind of audit event.
type EventType string

const (
	EventTeamFormed        EventType = "team_formed"
	EventWorkerCreated     EventType = "worker_created"
	EventTaskCreated       EventType = "task_created"
	EventTaskAssigned      EventType = "task_assigned"
	EventTaskTransitioned  EventType = "task_transitioned"
	EventTaskCompleted     EventType = "task_completed"
	EventToolInvoked       EventType = "tool_invoked"
	EventCheckpointWritten EventType = "checkpoint_written"
	EventCostRecorded      EventType = "cost_recorded"
	EventFailureClassified EventType = "failure_classified"
	EventEscalationRaised  EventType = "escalation_raised"
	EventBreakerOpened     EventType = "breaker_opened"
	EventBreakerClosed     EventType = "breaker_closed"
)

// Event is one immutable audit record. Every state transition, tool
// invocation, checkpoint write, and cost entry emits exactly one event.
// Consumers subscribe read-only and cannot influence orchestration.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`
	// Type identifies the kind of event.
	Type EventType `json:"type"`
	// TeamID is the team the event belongs to, if any.
	TeamID string `json:"team_id,omitempty"`
	// TaskID is the task the event belongs to, if any.
	TaskID string `json:"task_id,omitempty"`
	// AgentID is the agent the event belongs to, if any.
	AgentID string `json:"agent_id,omitempty"`
	// Payload is a serialized, type-specific detail blob.
	Payload string `json:"payload,omitempty"`
	// CreatedAt is when the event was emitted.
	CreatedAt time.Time `json:"created_at"`
}
