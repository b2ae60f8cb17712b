package factoryflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/factoryflow/llm"
	"github.com/randalmurphal/factoryflow/task"
	"github.com/randalmurphal/factoryflow/tracker"
)

// ProductManagerNode writes a product requirements document for the issue.
//
// Prerequisites: state.Issue must be set
// Updates: state.PRD, state.Status
func ProductManagerNode(ctx context.Context, s State) (Update, error) {
	if err := s.Validate(RequireIssue); err != nil {
		return Update{}, err
	}
	client := LLMFromContext(ctx)
	if client == nil {
		return Update{}, fmt.Errorf("llm.Generator not found in context")
	}

	prompt, err := MustPromptLoaderFromContext(ctx).Render("prd", map[string]any{
		"Context":  s.Issue.Description,
		"Request":  s.Issue.Title,
		"Feedback": s.PRDFeedback,
	})
	if err != nil {
		return Update{}, fmt.Errorf("render prd prompt: %w", err)
	}

	result, err := client.Generate(ctx, prompt, llm.WithModel(string(task.SelectModel(task.PRD))))
	if err != nil {
		return Update{}, fmt.Errorf("write PRD: %w", err)
	}

	prd := parsePRD(s.Issue.Title, result.Output)
	slog.Info("PRD drafted", "runId", s.RunID, "issue", s.Issue.Identifier, "stories", len(prd.UserStories))

	u := statusUpdate(StatusPRDReady, fmt.Sprintf("PRD drafted: %s", prd.Title))
	u.PRD = prd
	return u, nil
}

// parsePRD reads the model's PRD JSON. An unparsable response degrades to a
// bare document carrying the raw text, so the human review step always has
// something to reject.
func parsePRD(fallbackTitle, output string) *PRD {
	raw, err := llm.ExtractJSON(output)
	if err == nil {
		var prd PRD
		if err := json.Unmarshal([]byte(raw), &prd); err == nil && prd.Title != "" {
			return &prd
		}
	}
	snippet := output
	if len(snippet) > 2000 {
		snippet = snippet[:2000]
	}
	return &PRD{Title: fallbackTitle, ProblemStatement: snippet}
}

// ApprovalGateNode hands the PRD to a human: the issue description becomes
// the PRD document, the original request is preserved as a comment, and the
// issue moves to the human review column. The run ends here; a later poll
// resumes once the human signs off.
//
// Prerequisites: state.Issue and state.PRD must be set
// Updates: state.Status
func ApprovalGateNode(ctx context.Context, s State) (Update, error) {
	if err := s.Validate(RequireIssue, RequirePRD); err != nil {
		return Update{}, err
	}
	svc := TrackerFromContext(ctx)
	if svc == nil {
		return Update{}, fmt.Errorf("tracker.Service not found in context")
	}

	if s.Issue.Description != "" {
		original := "**Original Request:**\n\n" + s.Issue.Description
		if err := svc.AddComment(ctx, s.Issue.ID, original); err != nil {
			return Update{}, fmt.Errorf("preserve original description: %w", err)
		}
	}
	if err := svc.UpdateDescription(ctx, s.Issue.ID, FormatPRDMarkdown(s.PRD)); err != nil {
		return Update{}, fmt.Errorf("publish PRD to issue: %w", err)
	}
	if err := svc.Transition(ctx, s.Issue.ID, tracker.StateReviewPRD); err != nil {
		return Update{}, fmt.Errorf("transition issue for PRD review: %w", err)
	}

	slog.Info("PRD awaiting human review", "runId", s.RunID, "issue", s.Issue.Identifier)
	return statusUpdate(StatusAwaitingPRDReview, "PRD published to issue; awaiting human review"), nil
}

// FormatPRDMarkdown renders a PRD as the markdown document placed in the
// issue description for human review.
func FormatPRDMarkdown(prd *PRD) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# PRD: %s\n\n", prd.Title)
	if prd.ProblemStatement != "" {
		b.WriteString("## Problem Statement\n\n")
		b.WriteString(prd.ProblemStatement)
		b.WriteString("\n\n")
	}

	if len(prd.UserStories) > 0 {
		b.WriteString("## User Stories\n\n")
		for _, story := range prd.UserStories {
			fmt.Fprintf(&b, "- **%s**: As a %s, I want %s, so that %s\n",
				story.ID, story.AsA, story.IWant, story.SoThat)
			for _, ac := range prd.AcceptanceCriteria {
				if ac.StoryID != story.ID {
					continue
				}
				fmt.Fprintf(&b, "  - **%s — %s**\n", ac.ID, ac.Scenario)
				fmt.Fprintf(&b, "    - Given %s\n", ac.Given)
				fmt.Fprintf(&b, "    - When %s\n", ac.When)
				fmt.Fprintf(&b, "    - Then %s\n", ac.Then)
			}
		}
		b.WriteString("\n")
	}

	writeBulletSection(&b, "Edge Cases", prd.EdgeCases)
	writeBulletSection(&b, "Out of Scope", prd.OutOfScope)
	writeBulletSection(&b, "Success Metrics", prd.SuccessMetrics)

	if prd.Priority != "" || prd.Complexity != "" {
		b.WriteString("## Assessment\n\n")
		if prd.Priority != "" {
			fmt.Fprintf(&b, "- **Priority:** %s\n", prd.Priority)
		}
		if prd.Complexity != "" {
			fmt.Fprintf(&b, "- **Estimated Complexity:** %s\n", prd.Complexity)
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeBulletSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}
