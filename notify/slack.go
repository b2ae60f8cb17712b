package notify

import (
	"context"
	"fmt"

	flowhttp "github.com/randalmurphal/factoryflow/http"
)

// SlackNotifier posts pipeline events to a Slack incoming webhook.
type SlackNotifier struct {
	client   *flowhttp.Client
	channel  string
	username string
}

// SlackOption configures SlackNotifier.
type SlackOption func(*SlackNotifier)

// WithSlackChannel overrides the webhook's default channel.
func WithSlackChannel(channel string) SlackOption {
	return func(n *SlackNotifier) { n.channel = channel }
}

// WithSlackUsername sets the bot username.
func WithSlackUsername(username string) SlackOption {
	return func(n *SlackNotifier) { n.username = username }
}

// NewSlackNotifier creates a Slack webhook notifier.
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	n := &SlackNotifier{
		client: flowhttp.NewClient(flowhttp.ClientConfig{
			BaseURL:     webhookURL,
			ServiceName: "slack",
		}),
		username: "factoryflow",
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	payload := slackPayload{
		Username: n.username,
		Channel:  n.channel,
		Attachments: []slackAttachment{{
			Color:     colorForSeverity(event.Severity),
			Title:     string(event.Type),
			Text:      event.Message,
			Footer:    slackFooter(event),
			Timestamp: event.Timestamp.Unix(),
		}},
	}
	return n.client.Post(ctx, "", payload, nil)
}

func slackFooter(event Event) string {
	if event.Issue != "" {
		return fmt.Sprintf("%s | run %s", event.Issue, event.RunID)
	}
	return "run " + event.RunID
}

func colorForSeverity(severity string) string {
	switch severity {
	case SeverityError:
		return "danger"
	case SeverityWarning:
		return "warning"
	default:
		return "good"
	}
}

type slackPayload struct {
	Username    string            `json:"username,omitempty"`
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color     string `json:"color,omitempty"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Footer    string `json:"footer,omitempty"`
	Timestamp int64  `json:"ts,omitempty"`
}
