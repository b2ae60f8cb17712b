package notify

import (
	"context"
	"time"
)

// EventType classifies a pipeline event.
type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventRunCompleted EventType = "run_completed"
	EventRunFailed    EventType = "run_failed"
	EventPRPublished  EventType = "pr_published"
	EventReviewNeeded EventType = "review_needed"
	EventReverted     EventType = "reverted"
)

// Severity levels for events.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Event describes a pipeline event worth telling humans about.
type Event struct {
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id"`
	Phase     string         `json:"phase,omitempty"`
	Issue     string         `json:"issue,omitempty"`
	Message   string         `json:"message"`
	Severity  string         `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Notifier sends pipeline events somewhere humans look. Implementations
// must tolerate failure; a broken notifier never fails a run.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
