package history

import (
	"context"
	"time"
)

// EventType defines the kind of job lifecycle event.
type EventType string

const (
	EventStart  EventType = "start"
	EventFinish EventType = "finish"
	EventCancel EventType = "cancel"
)

// Event is one lifecycle record of a provisioning or update run.
type Event struct {
	Type       EventType `json:"type"`
	RunID      string    `json:"run_id"`
	Job        string    `json:"job"`
	Kind       string    `json:"kind"`
	PID        int       `json:"pid"`
	OccurredAt time.Time `json:"occurred_at"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Multi fans an event out to every sink and returns the first error.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var first error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink that supports it.
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
