package factoryflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/factoryflow/llm"
	"github.com/randalmurphal/factoryflow/task"
)

// ContractorNode drafts or redrafts an API contract for the current work
// item, folding in any outstanding review feedback.
//
// Prerequisites: state.TaskDescription must be set
// Updates: state.Contract, state.IterationCount, state.ReviewFeedback (cleared), state.Status
func ContractorNode(ctx context.Context, s State) (Update, error) {
	return runDraft(ctx, s, "draft_contract", map[string]any{
		"Context":  draftContext(s),
		"Task":     s.TaskDescription,
		"Feedback": formatFeedback(s.UnapprovedFeedback()),
	})
}

// SoftwareEngineerNode drafts a software design for tasks that need no
// contract work.
//
// Prerequisites: state.TaskDescription must be set
// Updates: state.Contract, state.IterationCount, state.ReviewFeedback (cleared), state.Status
func SoftwareEngineerNode(ctx context.Context, s State) (Update, error) {
	return runDraft(ctx, s, "draft_software", map[string]any{
		"Task":     s.TaskDescription,
		"Feedback": formatFeedback(s.UnapprovedFeedback()),
	})
}

// InfraEngineerNode drafts an infrastructure change plan.
//
// Prerequisites: state.TaskDescription must be set
// Updates: state.Contract, state.IterationCount, state.ReviewFeedback (cleared), state.Status
func InfraEngineerNode(ctx context.Context, s State) (Update, error) {
	return runDraft(ctx, s, "draft_infra", map[string]any{
		"Context":  draftContext(s),
		"Task":     s.TaskDescription,
		"Feedback": formatFeedback(s.UnapprovedFeedback()),
	})
}

// runDraft is the shared drafting pass. Every pass bumps the iteration
// counter and clears accumulated feedback so the next review round judges
// the new draft on its own.
func runDraft(ctx context.Context, s State, templateName string, data map[string]any) (Update, error) {
	if err := s.Validate(RequireTask); err != nil {
		return Update{}, err
	}
	client := LLMFromContext(ctx)
	if client == nil {
		return Update{}, fmt.Errorf("llm.Generator not found in context")
	}

	prompt, err := MustPromptLoaderFromContext(ctx).Render(templateName, data)
	if err != nil {
		return Update{}, fmt.Errorf("render %s prompt: %w", templateName, err)
	}

	result, err := client.Generate(ctx, prompt, llm.WithModel(string(task.SelectModel(task.Draft))))
	if err != nil {
		return Update{}, fmt.Errorf("draft %s: %w", templateName, err)
	}

	contract, extractErr := llm.ExtractJSON(result.Output)
	if extractErr != nil {
		// Keep something reviewable; the reviewers will reject it.
		contract = parseFailureArtifact(result.Output)
		slog.Warn("draft response was not valid JSON", "runId", s.RunID, "template", templateName)
	}

	u := statusUpdate(StatusReviewing, fmt.Sprintf("Draft iteration %d ready for review", s.IterationCount+1))
	u.Contract = ptr(contract)
	u.IterationCount = ptr(s.IterationCount + 1)
	u.SetReviewFeedback = []ReviewFeedback{}
	return u, nil
}

// draftContext describes the work item under the cursor, when the run has
// an architected stack.
func draftContext(s State) string {
	item, ok := s.CurrentWorkItem()
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s: %s\n%s", item.Kind, item.Title, item.Description)
}

// formatFeedback flattens unapproved reviews into prompt bullet points.
// The templates substitute a first-draft placeholder when this is empty.
func formatFeedback(feedback []ReviewFeedback) string {
	if len(feedback) == 0 {
		return ""
	}
	var lines []string
	for _, fb := range feedback {
		lines = append(lines, fmt.Sprintf("- [%s]: %s", fb.Agent, strings.Join(fb.Concerns, ", ")))
	}
	return strings.Join(lines, "\n")
}

// parseFailureArtifact wraps an unparsable model response in a well-formed
// JSON document so downstream consumers always see valid JSON.
func parseFailureArtifact(output string) string {
	snippet := output
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	artifact, _ := json.Marshal(map[string]string{
		"error":        "Failed to parse response as JSON",
		"raw_response": snippet,
	})
	return string(artifact)
}
