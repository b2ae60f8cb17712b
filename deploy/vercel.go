package deploy

import (
	"context"
	"fmt"
	"strings"
)

// Vercel deploys preview environments through the vercel CLI.
type Vercel struct {
	token   string
	project string
	dir     string
	runner  CommandRunner
}

// VercelConfig holds configuration for the Vercel deployer.
type VercelConfig struct {
	// Token is the Vercel API token. Required.
	Token string

	// Project is the Vercel project name. Required.
	Project string

	// Dir is the working directory for the CLI. Defaults to the current
	// directory.
	Dir string
}

// VercelOption configures Vercel.
type VercelOption func(*Vercel)

// WithVercelRunner sets a custom command runner. Tests use a mock.
func WithVercelRunner(runner CommandRunner) VercelOption {
	return func(v *Vercel) { v.runner = runner }
}

// NewVercel creates a Vercel deployer. Returns ErrNotConfigured when the
// token or project is missing, so callers can degrade to a skip.
func NewVercel(cfg VercelConfig, opts ...VercelOption) (*Vercel, error) {
	if cfg.Token == "" || cfg.Project == "" {
		return nil, fmt.Errorf("%w: vercel token or project missing", ErrNotConfigured)
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	v := &Vercel{
		token:   cfg.Token,
		project: cfg.Project,
		dir:     dir,
		runner:  execRunner{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Deploy runs a preview deployment for the branch and returns the preview
// URL, which the CLI prints as the last line of output.
func (v *Vercel) Deploy(ctx context.Context, branch string) (string, error) {
	out, err := v.runner.Run(ctx, v.dir,
		"vercel", "deploy",
		"--token", v.token,
		"--confirm",
		"--meta", "branch="+branch,
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDeployFailed, err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	url := strings.TrimSpace(lines[len(lines)-1])
	if url == "" {
		return "", fmt.Errorf("%w: no preview url in output", ErrDeployFailed)
	}
	return url, nil
}
