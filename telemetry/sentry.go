package telemetry

import (
	"context"
	"fmt"
	"net/http"

	flowhttp "github.com/randalmurphal/factoryflow/http"
)

// DefaultSentryBaseURL is the Sentry API endpoint.
const DefaultSentryBaseURL = "https://sentry.io/api/0"

// Sentry reads error stats from the Sentry project stats endpoint.
type Sentry struct {
	client  *flowhttp.Client
	org     string
	project string
}

// SentryConfig holds configuration for the Sentry client.
type SentryConfig struct {
	// AuthToken is the Sentry API token. Required.
	AuthToken string

	// Org and Project identify the Sentry project. Required.
	Org     string
	Project string

	// BaseURL overrides the API endpoint. Used in tests.
	BaseURL string
}

// NewSentry creates a Sentry client. Returns ErrNotConfigured when any
// credential is missing, so callers can degrade to a skip.
func NewSentry(cfg SentryConfig) (*Sentry, error) {
	if cfg.AuthToken == "" || cfg.Org == "" || cfg.Project == "" {
		return nil, fmt.Errorf("%w: sentry token, org, or project missing", ErrNotConfigured)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultSentryBaseURL
	}

	token := cfg.AuthToken
	return &Sentry{
		client: flowhttp.NewClient(flowhttp.ClientConfig{
			BaseURL:     baseURL,
			ServiceName: "sentry",
			BeforeRequest: func(req *http.Request) {
				req.Header.Set("Authorization", "Bearer "+token)
			},
		}),
		org:     cfg.Org,
		project: cfg.Project,
	}, nil
}

// RecentErrorCount sums received-event counts over the last five minutes
// at one-minute resolution. Stats points arrive as [timestamp, count]
// pairs.
func (s *Sentry) RecentErrorCount(ctx context.Context) (int, error) {
	path := fmt.Sprintf("/projects/%s/%s/stats/?stat=received&resolution=1m&since=-5m",
		s.org, s.project)

	var points [][]float64
	if err := s.client.Get(ctx, path, &points); err != nil {
		return 0, fmt.Errorf("fetch sentry stats: %w", err)
	}

	start := len(points) - 5
	if start < 0 {
		start = 0
	}
	total := 0
	for _, p := range points[start:] {
		if len(p) >= 2 {
			total += int(p[1])
		}
	}
	return total, nil
}
