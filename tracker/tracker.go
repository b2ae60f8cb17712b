// Package tracker talks to the issue tracker that drives the pipeline. The
// production client speaks the Linear GraphQL API; nodes and the polling
// service depend only on the Service interface.
package tracker

import (
	"context"
	"errors"
)

// Tracker errors.
var (
	// ErrIssueNotFound indicates the issue does not exist or is invisible
	// to the configured API key.
	ErrIssueNotFound = errors.New("issue not found")

	// ErrStateNotFound indicates the named workflow state does not exist
	// in the workspace.
	ErrStateNotFound = errors.New("workflow state not found")

	// ErrMutationFailed indicates the tracker rejected a mutation.
	ErrMutationFailed = errors.New("tracker mutation failed")
)

// Workflow states the pipeline reads from and writes to. The board is the
// source of truth for what the automation should pick up next.
const (
	StateReady      = "AI: Ready"
	StateCreatePRD  = "AI: Create PRD"
	StateCreateERD  = "AI: Create ERD"
	StateImplement  = "AI: Implement"
	StateInProgress = "AI: In Progress"
	StateFailed     = "AI: Failed"
	StateReviewPRD  = "Human: Review PRD"
	StateReviewERD  = "Human: Review ERD"
	StateReviewPR   = "Human: Review PR"
	StateDone       = "Done"
)

// Issue is a tracker issue as the pipeline sees it.
type Issue struct {
	ID          string `json:"id"`
	Identifier  string `json:"identifier"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	State       string `json:"state"`
	Priority    int    `json:"priority"`
	ParentID    string `json:"parentId,omitempty"`
}

// IsSubIssue reports whether the issue belongs to a parent.
func (i *Issue) IsSubIssue() bool { return i.ParentID != "" }

// SubIssueInput describes a sub-issue to create under a parent.
type SubIssueInput struct {
	ParentID    string
	Title       string
	Description string
	StateName   string
}

// Service is the tracker surface the pipeline uses.
type Service interface {
	// IssuesInState lists the team's issues sitting in a workflow state.
	IssuesInState(ctx context.Context, teamKey, stateName string) ([]Issue, error)

	// IssueByID fetches a single issue.
	IssueByID(ctx context.Context, id string) (*Issue, error)

	// SubIssues lists the children of a parent issue.
	SubIssues(ctx context.Context, parentID string) ([]Issue, error)

	// Transition moves an issue to the named workflow state.
	Transition(ctx context.Context, issueID, stateName string) error

	// UpdateDescription replaces the issue description.
	UpdateDescription(ctx context.Context, issueID, description string) error

	// AddComment posts a markdown comment on an issue.
	AddComment(ctx context.Context, issueID, body string) error

	// Comments returns the comment bodies on an issue, oldest first.
	Comments(ctx context.Context, issueID string) ([]string, error)

	// CreateSubIssue creates a child issue and returns it.
	CreateSubIssue(ctx context.Context, input SubIssueInput) (*Issue, error)
}

// AllSubIssuesDone reports whether every child of the parent is closed.
// A parent with no children is not considered done.
func AllSubIssuesDone(ctx context.Context, svc Service, parentID string) (bool, error) {
	subs, err := svc.SubIssues(ctx, parentID)
	if err != nil {
		return false, err
	}
	if len(subs) == 0 {
		return false, nil
	}
	for _, sub := range subs {
		switch sub.State {
		case StateDone, "Completed", "Closed", "Canceled":
		default:
			return false, nil
		}
	}
	return true, nil
}
