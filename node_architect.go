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

// ArchitectNode breaks a contract-first task into ordered work items.
//
// Prerequisites: state.TaskDescription must be set
// Updates: state.WorkItems, state.CurrentWorkIndex, state.Status
func ArchitectNode(ctx context.Context, s State) (Update, error) {
	if err := s.Validate(RequireTask); err != nil {
		return Update{}, err
	}
	client := LLMFromContext(ctx)
	if client == nil {
		return Update{}, fmt.Errorf("llm.Generator not found in context")
	}

	prompt, err := MustPromptLoaderFromContext(ctx).Render("architect", map[string]any{
		"Task": s.TaskDescription,
	})
	if err != nil {
		return Update{}, fmt.Errorf("render architect prompt: %w", err)
	}

	result, err := client.Generate(ctx, prompt, llm.WithModel(string(task.SelectModel(task.Architecture))))
	if err != nil {
		return Update{}, fmt.Errorf("architect task: %w", err)
	}

	items, err := parseWorkItems(result.Output)
	if err != nil || len(items) == 0 {
		slog.Warn("architect produced no usable breakdown", "runId", s.RunID, "error", err)
		return statusUpdate(StatusFailed, "Architect could not produce a work breakdown."), nil
	}

	slog.Info("task architected", "runId", s.RunID, "items", len(items))
	u := statusUpdate(StatusArchitected, fmt.Sprintf("Architected %d work items", len(items)))
	u.SetWorkItems = items
	u.CurrentWorkIndex = ptr(0)
	return u, nil
}

// architectItem matches the breakdown schema the model is prompted for,
// which is not the WorkItem wire format.
type architectItem struct {
	Type               string   `json:"type"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	DependsOn          string   `json:"depends_on"`
}

func parseWorkItems(output string) ([]WorkItem, error) {
	raw, err := llm.ExtractJSON(output)
	if err != nil {
		return nil, err
	}

	// The prompt asks for a {"work_items": [...]} envelope, but models
	// sometimes answer with the bare array.
	var parsed []architectItem
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, fmt.Errorf("parse work breakdown: %w", err)
		}
	} else {
		var envelope struct {
			WorkItems []architectItem `json:"work_items"`
		}
		if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
			return nil, fmt.Errorf("parse work breakdown: %w", err)
		}
		parsed = envelope.WorkItems
	}

	items := make([]WorkItem, 0, len(parsed))
	for _, p := range parsed {
		kind := WorkItemKind(strings.ToUpper(strings.TrimSpace(p.Type)))
		switch kind {
		case KindContract, KindBackend, KindFrontend:
		default:
			continue
		}
		item := WorkItem{
			Kind:               kind,
			Title:              p.Title,
			Description:        p.Description,
			AcceptanceCriteria: p.AcceptanceCriteria,
			Status:             WorkItemPending,
		}
		if dep := strings.TrimSpace(p.DependsOn); dep != "" && !strings.EqualFold(dep, "none") {
			item.DependsOn = []string{dep}
		}
		items = append(items, item)
	}
	return items, nil
}
