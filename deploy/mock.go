package deploy

import (
	"context"
	"sync"
)

// Mock is an in-memory DatabaseProvisioner and PreviewDeployer for tests.
type Mock struct {
	mu sync.Mutex

	// ConnectionURI is returned by Provision.
	ConnectionURI string

	// PreviewURL is returned by Deploy.
	PreviewURL string

	// ProvisionErr and DeployErr, when set, fail the respective call.
	ProvisionErr error
	DeployErr    error

	// ProvisionedBranches and DeployedBranches record calls.
	ProvisionedBranches []string
	DeployedBranches    []string
}

// NewMock creates a Mock with plausible defaults.
func NewMock() *Mock {
	return &Mock{
		ConnectionURI: "postgres://ephemeral.example.test/app",
		PreviewURL:    "https://preview.example.test",
	}
}

// Provision records the branch and returns the scripted connection URI.
func (m *Mock) Provision(_ context.Context, branch string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProvisionedBranches = append(m.ProvisionedBranches, branch)
	if m.ProvisionErr != nil {
		return "", m.ProvisionErr
	}
	return m.ConnectionURI, nil
}

// Deploy records the branch and returns the scripted preview URL.
func (m *Mock) Deploy(_ context.Context, branch string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeployedBranches = append(m.DeployedBranches, branch)
	if m.DeployErr != nil {
		return "", m.DeployErr
	}
	return m.PreviewURL, nil
}
