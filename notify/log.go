package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes events to slog. It is the default when no external
// notifier is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs to the given logger, or the
// default logger when nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{Logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	level := slog.LevelInfo
	switch event.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError:
		level = slog.LevelError
	}
	n.Logger.Log(ctx, level, event.Message,
		"type", event.Type,
		"runId", event.RunID,
		"phase", event.Phase,
		"issue", event.Issue,
	)
	return nil
}
