package streaming

import (
	"context"
	"time"
)

// StreamEvent is a real-time event emitted during a loop run.
type StreamEvent struct {
	WorkflowID string    `json:"workflow_id,omitempty"`
	LoopID     string    `json:"loop_id"`
	EventType  string    `json:"event_type"`
	Iteration  int       `json:"iteration"`
	Payload    any       `json:"payload,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	WorkflowID string   `json:"workflow_id,omitempty"`
	LoopID     string   `json:"loop_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for loop lifecycle events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
