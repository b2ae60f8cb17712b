// Package forge creates and inspects pull requests on the source-control
// host. GitHub and GitLab are supported; the pipeline depends only on
// Provider.
package forge

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Forge errors.
var (
	// ErrPRExists indicates a pull request already exists for the branch.
	ErrPRExists = errors.New("pull request already exists")

	// ErrNoChanges indicates the branch has no commits over its base.
	ErrNoChanges = errors.New("no changes between branches")

	// ErrPRNotFound indicates the pull request does not exist.
	ErrPRNotFound = errors.New("pull request not found")

	// ErrNotMerged indicates an operation requires a merged pull request.
	ErrNotMerged = errors.New("pull request not merged")

	// ErrUnknownProvider indicates the remote URL matches no known host.
	ErrUnknownProvider = errors.New("unknown provider")
)

// State is the lifecycle state of a pull request.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
	StateMerged State = "merged"
)

// PullRequest is a pull request as the pipeline sees it.
type PullRequest struct {
	Number         int
	URL            string
	Title          string
	Body           string
	State          State
	Draft          bool
	Head           string
	Base           string
	MergeCommitSHA string
	MergedAt       *time.Time
	CreatedAt      time.Time
}

// Merged reports whether the pull request has been merged.
func (pr *PullRequest) Merged() bool { return pr.State == StateMerged || pr.MergedAt != nil }

// Options configures pull request creation.
type Options struct {
	Title     string
	Body      string
	Base      string // default "main"
	Head      string
	Draft     bool
	Labels    []string
	Reviewers []string
}

// Provider is the forge surface the pipeline uses. Implementations are
// bound to a single repository.
type Provider interface {
	// CreatePR opens a pull request.
	CreatePR(ctx context.Context, opts Options) (*PullRequest, error)

	// GetPR fetches a pull request by number.
	GetPR(ctx context.Context, number int) (*PullRequest, error)

	// AddComment posts a comment on a pull request.
	AddComment(ctx context.Context, number int, body string) error
}

// ParseRepoFromURL extracts owner and repo from a git remote URL, accepting
// both SSH and HTTPS forms.
func ParseRepoFromURL(remoteURL string) (owner, repo string, err error) {
	if strings.HasPrefix(remoteURL, "git@") {
		parts := strings.SplitN(remoteURL, ":", 2)
		if len(parts) != 2 {
			return "", "", fmt.Errorf("invalid ssh remote %q", remoteURL)
		}
		path := strings.TrimSuffix(parts[1], ".git")
		pathParts := strings.Split(path, "/")
		if len(pathParts) != 2 {
			return "", "", fmt.Errorf("invalid repository path %q", parts[1])
		}
		return pathParts[0], pathParts[1], nil
	}

	trimmed := strings.TrimPrefix(remoteURL, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")
	trimmed = strings.TrimSuffix(trimmed, ".git")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 3 {
		return "", "", fmt.Errorf("invalid remote %q", remoteURL)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

var prURLPattern = regexp.MustCompile(`https?://[^/]+/([^/]+)/([^/]+)/(?:pull|merge_requests)/(\d+)`)

// ParsePRURL extracts owner, repo, and number from a pull request web URL.
func ParsePRURL(url string) (owner, repo string, number int, err error) {
	m := prURLPattern.FindStringSubmatch(url)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid pull request URL %q", url)
	}
	number, err = strconv.Atoi(m[3])
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid pull request number in %q", url)
	}
	return m[1], m[2], number, nil
}

// FindPRURL returns the first pull request URL found in the given texts.
func FindPRURL(texts []string) (string, bool) {
	for _, text := range texts {
		if m := prURLPattern.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}
