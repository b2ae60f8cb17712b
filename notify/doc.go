// Package notify sends pipeline events to humans.
//
// The poller emits an Event when a run fails, publishes a pull request, or
// reverts a deployment. SlackNotifier and WebhookNotifier deliver them over
// HTTP; LogNotifier is the fallback; MultiNotifier fans out.
//
//	notifier := notify.NewSlackNotifier(webhookURL,
//	    notify.WithSlackChannel("#factory-alerts"),
//	)
//	notifier.Notify(ctx, notify.Event{
//	    Type:     notify.EventRunFailed,
//	    RunID:    state.RunID,
//	    Message:  "Failed to reach approval after 5 iterations.",
//	    Severity: notify.SeverityError,
//	})
package notify
