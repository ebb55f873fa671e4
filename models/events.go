package models

import (
	"time"
)

// EventType is the type of an event emitted by the runner and the session
type EventType string

const (
	// Session events
	EventSessionStarted   EventType = "session.started"
	EventSessionCompleted EventType = "session.completed"
	EventSessionFailed    EventType = "session.failed"

	// Step events
	EventStepStarted    EventType = "step.started"
	EventStepFinished   EventType = "step.finished"
	EventStepRetrying   EventType = "step.retrying"
	EventStepExhausted  EventType = "step.exhausted"
	EventRecoveryFailed EventType = "step.recovery_failed"
)

// Event is a generic runner event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// EventListener is the interface to implement to receive runner events
type EventListener interface {
	OnEvent(event Event)
}
