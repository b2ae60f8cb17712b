package git

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Repo manages git operations for one repository checkout.
type Repo struct {
	path   string
	remote string
	runner CommandRunner
}

// Option configures Repo.
type Option func(*Repo)

// WithRunner sets a custom command runner. Tests use MockRunner.
func WithRunner(runner CommandRunner) Option {
	return func(r *Repo) { r.runner = runner }
}

// WithRemote sets the remote name. Default is "origin".
func WithRemote(remote string) Option {
	return func(r *Repo) { r.remote = remote }
}

// NewRepo creates a Repo for the checkout at path and verifies it is a git
// repository.
func NewRepo(path string, opts ...Option) (*Repo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	r := &Repo{
		path:   absPath,
		remote: "origin",
		runner: NewExecRunner(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if _, err := r.run(context.Background(), "rev-parse", "--git-dir"); err != nil {
		return nil, ErrNotGitRepo
	}
	return r, nil
}

// Path returns the checkout path.
func (r *Repo) Path() string { return r.path }

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	out, err := r.runner.Run(ctx, r.path, "git", args...)
	return strings.TrimSpace(out), err
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	return r.run(ctx, "branch", "--show-current")
}

// HeadCommit returns the SHA of HEAD.
func (r *Repo) HeadCommit(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "HEAD")
}

// RemoteURL returns the URL of the configured remote.
func (r *Repo) RemoteURL(ctx context.Context) (string, error) {
	return r.run(ctx, "remote", "get-url", r.remote)
}

// Checkout switches to an existing branch or ref.
func (r *Repo) Checkout(ctx context.Context, ref string) error {
	if out, err := r.run(ctx, "checkout", ref); err != nil {
		return &Error{Op: "checkout", Output: out, Err: err}
	}
	return nil
}

// CheckoutOrCreate checks out branch, creating it from the remote base when
// it does not exist yet. An existing branch is updated from the remote.
func (r *Repo) CheckoutOrCreate(ctx context.Context, branch, base string) error {
	// Remote refs may be stale; fetch failures are tolerated offline.
	r.run(ctx, "fetch", r.remote) //nolint:errcheck

	if _, err := r.run(ctx, "checkout", "-b", branch, r.remote+"/"+base); err == nil {
		return nil
	}

	out, err := r.run(ctx, "checkout", branch)
	if err != nil {
		return &Error{Op: "checkout", Output: out, Err: err}
	}
	r.run(ctx, "pull", r.remote, branch) //nolint:errcheck
	return nil
}

// CommitAll stages every change and commits. Returns ErrNothingToCommit
// when the tree is clean.
func (r *Repo) CommitAll(ctx context.Context, message string) error {
	if out, err := r.run(ctx, "add", "-A"); err != nil {
		return &Error{Op: "add", Output: out, Err: err}
	}

	status, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return &Error{Op: "status", Output: status, Err: err}
	}
	if status == "" {
		return ErrNothingToCommit
	}

	if out, err := r.run(ctx, "commit", "-m", message); err != nil {
		return &Error{Op: "commit", Output: out, Err: err}
	}
	return nil
}

// Push pushes the branch to the remote, setting upstream.
func (r *Repo) Push(ctx context.Context, branch string) error {
	if out, err := r.run(ctx, "push", "-u", r.remote, branch); err != nil {
		return &Error{Op: "push", Output: out, Err: fmt.Errorf("%w: %v", ErrPushFailed, err)}
	}
	return nil
}

// RevertMerge reverts a merge commit on the given branch and pushes the
// revert. The mainline parent is always the first one, matching merges
// created through the forge.
func (r *Repo) RevertMerge(ctx context.Context, branch, sha string) error {
	if err := r.Checkout(ctx, branch); err != nil {
		return err
	}
	r.run(ctx, "pull", r.remote, branch) //nolint:errcheck

	if out, err := r.run(ctx, "revert", "-m", "1", "--no-edit", sha); err != nil {
		return &Error{Op: "revert", Output: out, Err: err}
	}
	if out, err := r.run(ctx, "push", r.remote, branch); err != nil {
		return &Error{Op: "push", Output: out, Err: fmt.Errorf("%w: %v", ErrPushFailed, err)}
	}
	return nil
}

// IsClean reports whether the working tree has no uncommitted changes.
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	status, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, &Error{Op: "status", Output: status, Err: err}
	}
	return status == "", nil
}

var branchUnsafe = regexp.MustCompile(`[^a-zA-Z0-9/_.-]+`)

// SanitizeBranchName replaces characters git refuses in ref names.
func SanitizeBranchName(branch string) string {
	clean := branchUnsafe.ReplaceAllString(branch, "-")
	return strings.Trim(clean, "-/.")
}
