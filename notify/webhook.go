package notify

import (
	"context"
	"net/http"

	flowhttp "github.com/randalmurphal/factoryflow/http"
)

// WebhookNotifier POSTs events as JSON to a generic HTTP endpoint.
type WebhookNotifier struct {
	client *flowhttp.Client
}

// NewWebhookNotifier creates a webhook notifier. Headers are set on every
// request, typically for authentication.
func NewWebhookNotifier(url string, headers map[string]string) *WebhookNotifier {
	return &WebhookNotifier{
		client: flowhttp.NewClient(flowhttp.ClientConfig{
			BaseURL:     url,
			ServiceName: "webhook",
			BeforeRequest: func(req *http.Request) {
				for k, v := range headers {
					req.Header.Set(k, v)
				}
			},
		}),
	}
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	return n.client.Post(ctx, "", event, nil)
}
