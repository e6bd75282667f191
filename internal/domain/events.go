package domain

import "time"

// EventType identifies what happened.
type EventType string

const (
	EventTypeTaskSubmitted EventType = "task.submitted"
	EventTypeTaskPlanned   EventType = "task.planned"
	EventTypeTaskStarted   EventType = "task.started"
	EventTypeTaskCompleted EventType = "task.completed"
	EventTypeTaskFailed    EventType = "task.failed"
	EventTypeTaskCancelled EventType = "task.cancelled"

	EventTypeStepStarted   EventType = "step.started"
	EventTypeStepCompleted EventType = "step.completed"
	EventTypeStepFailed    EventType = "step.failed"
	EventTypeStepSkipped   EventType = "step.skipped"
)

// Event is published on every task and step transition.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	TaskID    string                 `json:"task_id"`
	StepID    string                 `json:"step_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Event bus topics.
const (
	TopicTaskEvents = "task.events"
	TopicStepEvents = "step.events"
)
