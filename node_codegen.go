package factoryflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/factoryflow/llm"
	"github.com/randalmurphal/factoryflow/task"
)

// MaxCorrections caps the validate/correct loop. Once an implementation has
// been corrected this many times the validator stops looping and lets the
// reviewers judge what exists.
const MaxCorrections = 3

// ImplementerNode runs headless code generation in the workspace, writing
// the implementation the specification calls for.
//
// Prerequisites: state.Workspace must be set
// Updates: state.Codegen, state.Status
func ImplementerNode(ctx context.Context, s State) (Update, error) {
	if err := s.Validate(RequireWorkspace); err != nil {
		return Update{}, err
	}
	client := LLMFromContext(ctx)
	if client == nil {
		return Update{}, fmt.Errorf("llm.Generator not found in context")
	}

	prompt, err := MustPromptLoaderFromContext(ctx).Render(implementTemplate(s), map[string]any{
		"Contract": specContent(s),
		"Task":     s.TaskDescription,
		"Context":  draftContext(s),
	})
	if err != nil {
		return Update{}, fmt.Errorf("render implementation prompt: %w", err)
	}

	result, err := client.Generate(ctx, prompt,
		llm.WithModel(string(task.SelectModel(task.Implement))),
		llm.WithWorkDir(s.Workspace),
		llm.WithAllowedTools("Read", "Edit", "Write", "Bash"),
	)
	if err != nil {
		if ctx.Err() != nil {
			return Update{}, ctx.Err()
		}
		// A failed generation run is material for the validator, not a
		// crashed pipeline.
		slog.Warn("code generation failed", "runId", s.RunID, "error", err)
		u := implementUpdate(s, "Implementation attempt failed")
		u.Codegen = &CodegenResult{ErrorOutput: err.Error()}
		return u, nil
	}

	slog.Info("implementation generated", "runId", s.RunID, "exitCode", result.ExitCode)
	u := implementUpdate(s, "Implementation ready for validation")
	u.Codegen = codegenFromResult(result)
	return u, nil
}

// implementUpdate is the common shape of an implementation pass: like a
// drafting pass, it consumes an iteration and clears stale review feedback.
func implementUpdate(s State, msg string) Update {
	u := statusUpdate(StatusImplementationReady, msg)
	u.IterationCount = ptr(s.IterationCount + 1)
	u.SetReviewFeedback = []ReviewFeedback{}
	return u
}

// implementTemplate picks the prompt for the layer being implemented.
func implementTemplate(s State) string {
	kind := KindBackend
	if item, ok := s.CurrentWorkItem(); ok {
		kind = item.Kind
	} else if s.RequestType == RequestRequiresContract {
		kind = KindContract
	}
	switch kind {
	case KindContract:
		return "implement_contract"
	case KindFrontend:
		return "implement_frontend"
	default:
		return "implement_backend"
	}
}

// specContent finds the most authoritative description of what to build:
// the reviewed draft, then the technical specification, then the issue.
func specContent(s State) string {
	if s.Contract != "" {
		return s.Contract
	}
	if s.TechSpec != nil {
		return s.TechSpec.Raw
	}
	if s.Issue != nil {
		return s.Issue.Description
	}
	return ""
}

func codegenFromResult(result *llm.Result) *CodegenResult {
	cg := &CodegenResult{Output: result.Output}
	if result.ExitCode != 0 {
		cg.ErrorOutput = fmt.Sprintf("generation exited with code %d", result.ExitCode)
	}
	return cg
}

// ValidatorNode inspects the last generation attempt. Failures loop back
// through the corrector until the correction budget runs out, at which
// point the implementation goes to review as-is.
//
// Prerequisites: state.Codegen must be set
// Updates: state.Status
func ValidatorNode(_ context.Context, s State) (Update, error) {
	if s.Codegen == nil {
		return Update{}, fmt.Errorf("no implementation attempt to validate")
	}

	if s.Codegen.ErrorOutput == "" {
		return statusUpdate(StatusReviewing, "Validation passed"), nil
	}
	if s.CorrectionCount >= MaxCorrections {
		slog.Warn("correction ceiling reached", "runId", s.RunID, "corrections", s.CorrectionCount)
		return statusUpdate(StatusReviewing,
			fmt.Sprintf("Correction limit reached after %d attempts; sending to review as-is", s.CorrectionCount)), nil
	}
	return statusUpdate(StatusNeedsCorrection,
		fmt.Sprintf("Validation failed (attempt %d): %s", s.CorrectionCount+1, s.Codegen.ErrorOutput)), nil
}

// CorrectorNode feeds validation errors back into code generation.
//
// Prerequisites: state.Workspace and state.Codegen must be set
// Updates: state.Codegen, state.CorrectionCount, state.Status
func CorrectorNode(ctx context.Context, s State) (Update, error) {
	if err := s.Validate(RequireWorkspace); err != nil {
		return Update{}, err
	}
	if s.Codegen == nil {
		return Update{}, fmt.Errorf("no implementation attempt to correct")
	}
	client := LLMFromContext(ctx)
	if client == nil {
		return Update{}, fmt.Errorf("llm.Generator not found in context")
	}

	prompt, err := MustPromptLoaderFromContext(ctx).Render("correction", map[string]any{
		"Task":   s.TaskDescription,
		"Errors": s.Codegen.ErrorOutput,
	})
	if err != nil {
		return Update{}, fmt.Errorf("render correction prompt: %w", err)
	}

	u := Update{
		CorrectionCount: ptr(s.CorrectionCount + 1),
		Status:          ptr(StatusImplementationReady),
	}

	result, err := client.Generate(ctx, prompt,
		llm.WithModel(string(task.SelectModel(task.Correct))),
		llm.WithWorkDir(s.Workspace),
		llm.WithAllowedTools("Read", "Edit", "Bash"),
	)
	if err != nil {
		if ctx.Err() != nil {
			return Update{}, ctx.Err()
		}
		slog.Warn("correction attempt failed", "runId", s.RunID, "error", err)
		u.Codegen = &CodegenResult{ErrorOutput: err.Error()}
		u.AppendMessages = []string{fmt.Sprintf("Correction %d failed", s.CorrectionCount+1)}
		return u, nil
	}

	u.Codegen = codegenFromResult(result)
	u.AppendMessages = []string{fmt.Sprintf("Correction %d applied", s.CorrectionCount+1)}
	return u, nil
}
