package factoryflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/factoryflow/forge"
	"github.com/randalmurphal/factoryflow/git"
	"github.com/randalmurphal/factoryflow/tracker"
)

// defaultBaseBranch is where the first branch of a stack forks from.
const defaultBaseBranch = "main"

// StackManagerNode prepares the branch for the current work item. Contract
// branches fork from main and become the base the rest of the stack builds
// on; backend and frontend branches fork from that stack base.
//
// Prerequisites: state.WorkItems must be set
// Updates: state.WorkItems[current], state.StackBaseBranch, state.Status
func StackManagerNode(ctx context.Context, s State) (Update, error) {
	if err := s.Validate(RequireWorkItems); err != nil {
		return Update{}, err
	}
	if s.StackExhausted() {
		slog.Info("work item stack complete", "runId", s.RunID, "items", len(s.WorkItems))
		return statusUpdate(StatusStackComplete, "All work items published"), nil
	}

	repo := RepoFromContext(ctx)
	if repo == nil {
		return Update{}, fmt.Errorf("git.Repo not found in context")
	}

	item, _ := s.CurrentWorkItem()
	branch := git.WorkItemBranch(issueKey(s), string(item.Kind))

	base := s.StackBaseBranch
	if base == "" || item.Kind == KindContract {
		base = defaultBaseBranch
	}

	if err := repo.CheckoutOrCreate(ctx, branch, base); err != nil {
		slog.Error("branch setup failed", "runId", s.RunID, "branch", branch, "error", err)
		return statusUpdate(StatusFailed,
			fmt.Sprintf("Could not create branch %s from %s: %v", branch, base, err)), nil
	}

	u := statusUpdate(workingStatus(item.Kind),
		fmt.Sprintf("Working %s on branch %s (base %s)", item.Kind, branch, base))
	u.SetWorkItem = &WorkItemUpdate{
		Index:      s.CurrentWorkIndex,
		Status:     ptr(WorkItemInProgress),
		BranchName: ptr(branch),
	}
	if item.Kind == KindContract {
		// Later items in the stack build on top of the contract branch.
		u.StackBaseBranch = ptr(branch)
	}
	return u, nil
}

// PublisherNode commits the finished work, pushes its branch, and opens a
// pull request. Stacked runs advance the work-item cursor; single-branch
// runs publish the whole task at once.
//
// Prerequisites: state approved, repository available
// Updates: state.PRURL, state.WorkItems[current], state.CurrentWorkIndex, state.Status
func PublisherNode(ctx context.Context, s State) (Update, error) {
	repo := RepoFromContext(ctx)
	if repo == nil {
		return Update{}, fmt.Errorf("git.Repo not found in context")
	}
	provider := ForgeFromContext(ctx)
	if provider == nil {
		return Update{}, fmt.Errorf("forge.Provider not found in context")
	}

	branch, base, title := publishTarget(s)

	if err := repo.CommitAll(ctx, fmt.Sprintf("feat: %s", title)); err != nil {
		if !errors.Is(err, git.ErrNothingToCommit) {
			return Update{}, fmt.Errorf("commit %s: %w", branch, err)
		}
	}
	if err := repo.Push(ctx, branch); err != nil {
		slog.Error("push failed", "runId", s.RunID, "branch", branch, "error", err)
		return statusUpdate(StatusFailed, fmt.Sprintf("Failed to push branch %s: %v", branch, err)), nil
	}

	pr, err := provider.CreatePR(ctx, forge.Options{
		Title: title,
		Body:  publishBody(s),
		Head:  branch,
		Base:  base,
	})
	if err != nil {
		slog.Error("pull request creation failed", "runId", s.RunID, "branch", branch, "error", err)
		return statusUpdate(StatusFailed, fmt.Sprintf("Failed to open pull request for %s: %v", branch, err)), nil
	}
	slog.Info("pull request opened", "runId", s.RunID, "pr", pr.URL)

	if svc := TrackerFromContext(ctx); svc != nil && s.Issue != nil {
		if err := svc.AddComment(ctx, s.Issue.ID, fmt.Sprintf("Pull request ready for review: %s", pr.URL)); err != nil {
			slog.Warn("failed to comment PR URL on issue", "issue", s.Issue.Identifier, "error", err)
		}
		if err := svc.Transition(ctx, s.Issue.ID, tracker.StateReviewPR); err != nil {
			slog.Warn("failed to transition issue", "issue", s.Issue.Identifier, "error", err)
		}
	}

	u := statusUpdate(StatusPublished, fmt.Sprintf("Published %s: %s", branch, pr.URL))
	u.PRURL = ptr(pr.URL)
	if _, ok := s.CurrentWorkItem(); ok {
		u.SetWorkItem = &WorkItemUpdate{
			Index:  s.CurrentWorkIndex,
			Status: ptr(WorkItemCompleted),
		}
		u.CurrentWorkIndex = ptr(s.CurrentWorkIndex + 1)
	}
	return u, nil
}

// publishTarget resolves the branch, PR base, and PR title for the publish
// step. Stacked runs use the branch the stack manager created; runs without
// a stack publish a single task branch.
func publishTarget(s State) (branch, base, title string) {
	if item, ok := s.CurrentWorkItem(); ok {
		base = s.StackBaseBranch
		if base == "" || item.Kind == KindContract {
			base = defaultBaseBranch
		}
		return item.BranchName, base, item.Title
	}
	title = s.TaskDescription
	if len(title) > 60 {
		title = title[:60]
	}
	return git.TaskBranch(s.TaskDescription), defaultBaseBranch, title
}

func publishBody(s State) string {
	var b strings.Builder
	b.WriteString("## Summary\n\n")
	b.WriteString(s.TaskDescription)
	b.WriteString("\n")
	if item, ok := s.CurrentWorkItem(); ok {
		fmt.Fprintf(&b, "\n**Work item:** %s — %s\n", item.Kind, item.Title)
		if item.Description != "" {
			b.WriteString(item.Description)
			b.WriteString("\n")
		}
	}
	if s.Issue != nil {
		fmt.Fprintf(&b, "\nCloses %s.\n", s.Issue.Identifier)
	}
	return b.String()
}

// issueKey names the run for branch construction: the tracker identifier
// when the run came from an issue, the run ID otherwise.
func issueKey(s State) string {
	if s.Issue != nil && s.Issue.Identifier != "" {
		return s.Issue.Identifier
	}
	return s.RunID
}

func workingStatus(kind WorkItemKind) Status {
	return Status("working_" + strings.ToLower(string(kind)))
}
