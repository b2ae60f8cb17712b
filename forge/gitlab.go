package forge

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/xanzy/go-gitlab"
)

// GitLab implements Provider for GitLab repositories. Merge requests are
// surfaced through the same PullRequest shape the rest of the pipeline uses.
type GitLab struct {
	client    *gitlab.Client
	projectID string // numeric ID or "namespace/project"
}

// NewGitLab creates a GitLab provider. baseURL is empty for gitlab.com.
func NewGitLab(token, baseURL, projectID string) (*GitLab, error) {
	if token == "" {
		return nil, fmt.Errorf("gitlab token is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	var (
		client *gitlab.Client
		err    error
	)
	if baseURL != "" {
		client, err = gitlab.NewClient(token, gitlab.WithBaseURL(baseURL))
	} else {
		client, err = gitlab.NewClient(token)
	}
	if err != nil {
		return nil, fmt.Errorf("create gitlab client: %w", err)
	}

	return &GitLab{client: client, projectID: projectID}, nil
}

// NewGitLabFromURL creates a GitLab provider from a git remote URL,
// detecting self-hosted instances from the host.
func NewGitLabFromURL(token, remoteURL string) (*GitLab, error) {
	owner, repo, err := ParseRepoFromURL(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("parse remote URL: %w", err)
	}

	var baseURL string
	if !strings.Contains(remoteURL, "gitlab.com") {
		trimmed := strings.TrimPrefix(remoteURL, "https://")
		trimmed = strings.TrimPrefix(trimmed, "http://")
		if parts := strings.Split(trimmed, "/"); len(parts) > 0 {
			baseURL = "https://" + parts[0]
		}
	}

	return NewGitLab(token, baseURL, owner+"/"+repo)
}

// CreatePR opens a merge request.
func (g *GitLab) CreatePR(ctx context.Context, opts Options) (*PullRequest, error) {
	target := opts.Base
	if target == "" {
		target = "main"
	}

	title := opts.Title
	if opts.Draft {
		title = "Draft: " + title
	}

	mrOpts := &gitlab.CreateMergeRequestOptions{
		Title:        gitlab.Ptr(title),
		Description:  gitlab.Ptr(opts.Body),
		SourceBranch: gitlab.Ptr(opts.Head),
		TargetBranch: gitlab.Ptr(target),
	}
	if len(opts.Labels) > 0 {
		mrOpts.Labels = gitlab.Ptr(gitlab.LabelOptions(opts.Labels))
	}

	mr, resp, err := g.client.MergeRequests.CreateMergeRequest(g.projectID, mrOpts, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return nil, ErrPRExists
		}
		if resp != nil && resp.StatusCode == http.StatusBadRequest &&
			strings.Contains(err.Error(), "No commits between") {
			return nil, ErrNoChanges
		}
		return nil, fmt.Errorf("create merge request: %w", err)
	}

	return fromGitLabMR(mr), nil
}

// GetPR fetches a merge request by IID.
func (g *GitLab) GetPR(ctx context.Context, number int) (*PullRequest, error) {
	mr, resp, err := g.client.MergeRequests.GetMergeRequest(g.projectID, number, nil, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrPRNotFound
		}
		return nil, fmt.Errorf("get merge request: %w", err)
	}
	return fromGitLabMR(mr), nil
}

// AddComment posts a note on a merge request.
func (g *GitLab) AddComment(ctx context.Context, number int, body string) error {
	opts := &gitlab.CreateMergeRequestNoteOptions{Body: gitlab.Ptr(body)}
	if _, _, err := g.client.Notes.CreateMergeRequestNote(g.projectID, number, opts, gitlab.WithContext(ctx)); err != nil {
		return fmt.Errorf("add note: %w", err)
	}
	return nil
}

func fromGitLabMR(mr *gitlab.MergeRequest) *PullRequest {
	out := &PullRequest{
		Number:         mr.IID,
		URL:            mr.WebURL,
		Title:          mr.Title,
		Body:           mr.Description,
		Draft:          mr.Draft,
		Head:           mr.SourceBranch,
		Base:           mr.TargetBranch,
		MergeCommitSHA: mr.MergeCommitSHA,
	}
	if mr.CreatedAt != nil {
		out.CreatedAt = *mr.CreatedAt
	}

	switch mr.State {
	case "merged":
		out.State = StateMerged
	case "closed", "locked":
		out.State = StateClosed
	default:
		out.State = StateOpen
	}
	if mr.MergedAt != nil {
		out.MergedAt = mr.MergedAt
	}
	return out
}

var _ Provider = (*GitLab)(nil)
