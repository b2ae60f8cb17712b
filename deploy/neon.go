package deploy

import (
	"context"
	"fmt"
	"net/http"

	flowhttp "github.com/randalmurphal/factoryflow/http"
)

// DefaultNeonBaseURL is the Neon console API endpoint.
const DefaultNeonBaseURL = "https://console.neon.tech/api/v2"

// Neon provisions ephemeral database branches through the Neon API.
type Neon struct {
	client    *flowhttp.Client
	projectID string
	parent    string
}

// NeonConfig holds configuration for the Neon provisioner.
type NeonConfig struct {
	// APIKey is the Neon API key. Required.
	APIKey string

	// ProjectID is the Neon project to branch. Required.
	ProjectID string

	// ParentBranch is the branch new database branches fork from.
	// Defaults to "main".
	ParentBranch string

	// BaseURL overrides the API endpoint. Used in tests.
	BaseURL string
}

// NewNeon creates a Neon provisioner. Returns ErrNotConfigured when the
// API key or project is missing, so callers can degrade to a skip.
func NewNeon(cfg NeonConfig) (*Neon, error) {
	if cfg.APIKey == "" || cfg.ProjectID == "" {
		return nil, fmt.Errorf("%w: neon api key or project missing", ErrNotConfigured)
	}
	if cfg.ParentBranch == "" {
		cfg.ParentBranch = "main"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultNeonBaseURL
	}

	apiKey := cfg.APIKey
	return &Neon{
		client: flowhttp.NewClient(flowhttp.ClientConfig{
			BaseURL:     baseURL,
			ServiceName: "neon",
			BeforeRequest: func(req *http.Request) {
				req.Header.Set("Authorization", "Bearer "+apiKey)
			},
		}),
		projectID: cfg.ProjectID,
		parent:    cfg.ParentBranch,
	}, nil
}

type neonBranchRequest struct {
	Branch neonBranch `json:"branch"`
}

type neonBranch struct {
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
}

type neonBranchResponse struct {
	ConnectionURI string `json:"connection_uri"`
}

// Provision creates a database branch named after the feature branch and
// returns its connection URI.
func (n *Neon) Provision(ctx context.Context, branch string) (string, error) {
	req := neonBranchRequest{Branch: neonBranch{Name: branch, ParentID: n.parent}}

	var resp neonBranchResponse
	path := fmt.Sprintf("/projects/%s/branches", n.projectID)
	if err := n.client.Post(ctx, path, req, &resp); err != nil {
		return "", fmt.Errorf("provision database branch %q: %w", branch, err)
	}

	// Some plans omit the connection URI from the create response.
	if resp.ConnectionURI == "" {
		return "provisioned", nil
	}
	return resp.ConnectionURI, nil
}
