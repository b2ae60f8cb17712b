package notify

import (
	"context"
	"log/slog"
)

// MultiNotifier fans an event out to several notifiers. Individual failures
// are logged and do not stop the rest.
type MultiNotifier struct {
	Notifiers []Notifier
}

// NewMultiNotifier creates a fan-out notifier.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{Notifiers: notifiers}
}

// Notify implements Notifier. The last error, if any, is returned.
func (n *MultiNotifier) Notify(ctx context.Context, event Event) error {
	var lastErr error
	for _, notifier := range n.Notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			lastErr = err
			slog.Warn("notifier failed", "error", err, "eventType", event.Type)
		}
	}
	return lastErr
}

// NopNotifier discards all events.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Event) error { return nil }
