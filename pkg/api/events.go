package api

import "time"

type (
	// EventID uniquely identifies a published event
	EventID string

	// EventType is a dotted tag such as "task.completed"
	EventType string

	// Event is published on the event channel by every component
	Event struct {
		Timestamp time.Time `json:"timestamp"`
		Data      any       `json:"data,omitempty"`
		ID        EventID   `json:"id"`
		Type      EventType `json:"type"`
		Source    string    `json:"source"`
	}
)

const (
	EventTaskCreated   EventType = "task.created"
	EventTaskStarted   EventType = "task.started"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskCancelled EventType = "task.cancelled"

	EventDecisionMade    EventType = "decision.made"
	EventDecisionOutcome EventType = "decision.outcome"

	EventWorkflowRegistered    EventType = "workflow.registered"
	EventWorkflowStarted       EventType = "workflow.started"
	EventWorkflowStepCompleted EventType = "workflow.step_completed"
	EventWorkflowStepFailed    EventType = "workflow.step_failed"
	EventWorkflowCompleted     EventType = "workflow.completed"
	EventWorkflowFailed        EventType = "workflow.failed"
	EventWorkflowCancelled     EventType = "workflow.cancelled"

	EventMonitorAlert             EventType = "monitor.alert"
	EventMonitorThresholdExceeded EventType = "monitor.threshold_exceeded"
	EventMonitorHealthChanged     EventType = "monitor.health_changed"

	EventSystemError EventType = "system.error"
)
