// Package deploy provisions ephemeral preview environments: a database
// branch per feature branch plus a preview deployment to test against.
package deploy

import (
	"context"
	"errors"
)

// =============== Interfaces ===============

// DatabaseProvisioner creates an ephemeral database branch for a feature
// branch and returns its connection URI.
type DatabaseProvisioner interface {
	Provision(ctx context.Context, branch string) (string, error)
}

// PreviewDeployer deploys a preview environment for a feature branch and
// returns the preview URL.
type PreviewDeployer interface {
	Deploy(ctx context.Context, branch string) (string, error)
}

// CommandRunner executes external commands. It matches the runner used by
// the git package, so tests can share one mock.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// =============== Errors ===============

var (
	// ErrNotConfigured indicates the provider has no credentials. Callers
	// treat this as a skip, not a failure.
	ErrNotConfigured = errors.New("deploy provider not configured")

	// ErrDeployFailed indicates the deployment command failed.
	ErrDeployFailed = errors.New("deploy failed")
)
