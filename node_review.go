package factoryflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/factoryflow/llm"
	"github.com/randalmurphal/factoryflow/task"
)

// MaxIterations caps the draft/review loop. The supervisor fails the run
// once a draft has been rejected this many times.
const MaxIterations = 5

// SecurityNode reviews the current draft for security issues.
//
// Prerequisites: state.Contract must be set
// Updates: state.ReviewFeedback (appended)
func SecurityNode(ctx context.Context, s State) (Update, error) {
	return runReview(ctx, s, "security", "review_security")
}

// ComplianceNode reviews the current draft for regulatory and data-handling
// issues.
//
// Prerequisites: state.Contract must be set
// Updates: state.ReviewFeedback (appended)
func ComplianceNode(ctx context.Context, s State) (Update, error) {
	return runReview(ctx, s, "compliance", "review_compliance")
}

// DesignNode reviews the current draft for API and UX design quality.
//
// Prerequisites: state.Contract must be set
// Updates: state.ReviewFeedback (appended)
func DesignNode(ctx context.Context, s State) (Update, error) {
	return runReview(ctx, s, "design", "review_design")
}

func runReview(ctx context.Context, s State, agent, templateName string) (Update, error) {
	content := reviewContent(s)
	if content == "" {
		return Update{}, fmt.Errorf("nothing to review")
	}
	client := LLMFromContext(ctx)
	if client == nil {
		return Update{}, fmt.Errorf("llm.Generator not found in context")
	}

	prompt, err := MustPromptLoaderFromContext(ctx).Render(templateName, map[string]any{
		"Content": content,
	})
	if err != nil {
		return Update{}, fmt.Errorf("render %s prompt: %w", templateName, err)
	}

	result, err := client.Generate(ctx, prompt, llm.WithModel(string(task.SelectModel(task.Review))))
	if err != nil {
		return Update{}, fmt.Errorf("%s review: %w", agent, err)
	}

	fb := parseReviewVerdict(agent, result.Output)
	slog.Debug("review recorded", "runId", s.RunID, "agent", agent, "approved", fb.Approved)

	verdict := "rejected"
	if fb.Approved {
		verdict = "approved"
	}
	return Update{
		AppendReviewFeedback: []ReviewFeedback{fb},
		AppendMessages:       []string{fmt.Sprintf("%s review: %s", agent, verdict)},
	}, nil
}

// reviewContent picks what the reviewers judge: the current draft, or the
// generated implementation when the run skipped drafting.
func reviewContent(s State) string {
	if s.Contract != "" {
		return s.Contract
	}
	if s.Codegen != nil {
		return s.Codegen.Output
	}
	return ""
}

// parseReviewVerdict reads a reviewer's JSON verdict. An unparsable
// response counts as a rejection so a broken reviewer can never wave a
// draft through.
func parseReviewVerdict(agent, output string) ReviewFeedback {
	rejection := ReviewFeedback{
		Agent:    agent,
		Concerns: []string{fmt.Sprintf("Failed to parse %s review response", agent)},
	}
	raw, err := llm.ExtractJSON(output)
	if err != nil {
		return rejection
	}
	var verdict struct {
		Approved    bool     `json:"approved"`
		Concerns    []string `json:"concerns"`
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return rejection
	}
	return ReviewFeedback{
		Agent:       agent,
		Approved:    verdict.Approved,
		Concerns:    verdict.Concerns,
		Suggestions: verdict.Suggestions,
	}
}

// SupervisorNode tallies the review round and decides whether the draft is
// approved, needs another pass, or has exhausted its iteration budget.
//
// Prerequisites: none
// Updates: state.Status
func SupervisorNode(_ context.Context, s State) (Update, error) {
	switch {
	case s.AllApproved():
		slog.Info("draft approved", "runId", s.RunID, "iterations", s.IterationCount)
		return statusUpdate(StatusApproved,
			fmt.Sprintf("All reviewers approved after %d iteration(s)", s.IterationCount)), nil
	case s.IterationCount >= MaxIterations:
		slog.Warn("iteration ceiling reached", "runId", s.RunID)
		return statusUpdate(StatusFailed,
			fmt.Sprintf("Failed to reach approval after %d iterations.", MaxIterations)), nil
	default:
		unresolved := len(s.UnapprovedFeedback())
		return statusUpdate(StatusDrafting,
			fmt.Sprintf("%d reviewer(s) raised concerns; drafting again", unresolved)), nil
	}
}
