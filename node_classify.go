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

// ClassifierNode decides what kind of work the task needs.
//
// Prerequisites: state.TaskDescription must be set
// Updates: state.RequestType, state.Status
func ClassifierNode(ctx context.Context, s State) (Update, error) {
	if err := s.Validate(RequireTask); err != nil {
		return Update{}, err
	}
	client := LLMFromContext(ctx)
	if client == nil {
		return Update{}, fmt.Errorf("llm.Generator not found in context")
	}

	prompt, err := MustPromptLoaderFromContext(ctx).Render("classifier", map[string]any{
		"Task": s.TaskDescription,
	})
	if err != nil {
		return Update{}, fmt.Errorf("render classifier prompt: %w", err)
	}

	result, err := client.Generate(ctx, prompt, llm.WithModel(string(task.SelectModel(task.Classify))))
	if err != nil {
		return Update{}, fmt.Errorf("classify task: %w", err)
	}

	reqType := parseClassification(result.Output)
	slog.Debug("task classified", "runId", s.RunID, "type", reqType)

	u := statusUpdate(StatusClassified, fmt.Sprintf("Classified task as %s", reqType))
	u.RequestType = ptr(reqType)
	return u, nil
}

// parseClassification reads the model's verdict. Anything it cannot
// understand degrades to a general request rather than failing the run.
func parseClassification(output string) RequestType {
	raw, err := llm.ExtractJSON(output)
	if err != nil {
		return RequestGeneral
	}
	var verdict struct {
		Classification string `json:"classification"`
	}
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return RequestGeneral
	}
	switch RequestType(strings.ToLower(strings.TrimSpace(verdict.Classification))) {
	case RequestRequiresContract:
		return RequestRequiresContract
	case RequestInfrastructure:
		return RequestInfrastructure
	default:
		return RequestGeneral
	}
}
