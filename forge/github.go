package forge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHub implements Provider for GitHub repositories.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHub creates a GitHub provider using a personal access token or an
// installation token minted by AppTokenSource.
func NewGitHub(token, owner, repo string) (*GitHub, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)

	return &GitHub{
		client: github.NewClient(tc),
		owner:  owner,
		repo:   repo,
	}, nil
}

// NewGitHubFromURL creates a GitHub provider from a git remote URL.
func NewGitHubFromURL(token, remoteURL string) (*GitHub, error) {
	owner, repo, err := ParseRepoFromURL(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote URL: %w", err)
	}
	return NewGitHub(token, owner, repo)
}

// WithBaseURL points the provider at a GitHub Enterprise or test server.
func (g *GitHub) WithBaseURL(baseURL string) (*GitHub, error) {
	client, err := g.client.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("set base URL: %w", err)
	}
	g.client = client
	return g, nil
}

// CreatePR opens a pull request.
func (g *GitHub) CreatePR(ctx context.Context, opts Options) (*PullRequest, error) {
	base := opts.Base
	if base == "" {
		base = "main"
	}

	newPR := &github.NewPullRequest{
		Title: github.String(opts.Title),
		Body:  github.String(opts.Body),
		Base:  github.String(base),
		Head:  github.String(opts.Head),
		Draft: github.Bool(opts.Draft),
	}

	pr, resp, err := g.client.PullRequests.Create(ctx, g.owner, g.repo, newPR)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
			if strings.Contains(err.Error(), "A pull request already exists") {
				return nil, ErrPRExists
			}
			if strings.Contains(err.Error(), "No commits between") {
				return nil, ErrNoChanges
			}
		}
		return nil, fmt.Errorf("create pull request: %w", err)
	}

	if len(opts.Labels) > 0 {
		if _, _, err := g.client.Issues.AddLabelsToIssue(ctx, g.owner, g.repo, pr.GetNumber(), opts.Labels); err != nil {
			// PR exists; labels are cosmetic.
			slog.Warn("failed to add labels", "pr", pr.GetNumber(), "error", err)
		}
	}
	if len(opts.Reviewers) > 0 {
		if _, _, err := g.client.PullRequests.RequestReviewers(ctx, g.owner, g.repo, pr.GetNumber(),
			github.ReviewersRequest{Reviewers: opts.Reviewers}); err != nil {
			slog.Warn("failed to request reviewers", "pr", pr.GetNumber(), "error", err)
		}
	}

	return fromGitHubPR(pr), nil
}

// GetPR fetches a pull request by number.
func (g *GitHub) GetPR(ctx context.Context, number int) (*PullRequest, error) {
	pr, resp, err := g.client.PullRequests.Get(ctx, g.owner, g.repo, number)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrPRNotFound
		}
		return nil, fmt.Errorf("get pull request: %w", err)
	}
	return fromGitHubPR(pr), nil
}

// AddComment posts an issue comment on a pull request.
func (g *GitHub) AddComment(ctx context.Context, number int, body string) error {
	comment := &github.IssueComment{Body: github.String(body)}
	if _, _, err := g.client.Issues.CreateComment(ctx, g.owner, g.repo, number, comment); err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

func fromGitHubPR(pr *github.PullRequest) *PullRequest {
	out := &PullRequest{
		Number:         pr.GetNumber(),
		URL:            pr.GetHTMLURL(),
		Title:          pr.GetTitle(),
		Body:           pr.GetBody(),
		Draft:          pr.GetDraft(),
		Head:           pr.GetHead().GetRef(),
		Base:           pr.GetBase().GetRef(),
		MergeCommitSHA: pr.GetMergeCommitSHA(),
		CreatedAt:      pr.GetCreatedAt().Time,
	}

	switch {
	case pr.GetMerged() || pr.MergedAt != nil:
		out.State = StateMerged
	case pr.GetState() == "closed":
		out.State = StateClosed
	default:
		out.State = StateOpen
	}
	if pr.MergedAt != nil {
		t := pr.MergedAt.Time
		out.MergedAt = &t
	}
	return out
}

var _ Provider = (*GitHub)(nil)
