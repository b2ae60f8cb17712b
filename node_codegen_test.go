package factoryflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/randalmurphal/factoryflow/llm"
	"github.com/randalmurphal/factoryflow/tracker"
)

func implementState() State {
	s := NewState("add export endpoint").WithPhase(PhaseImplement).WithWorkspace("/srv/repo")
	s.Issue = &tracker.Issue{ID: "iss_1", Identifier: "ENG-42", Description: "spec body"}
	return s
}

func TestImplementerNode(t *testing.T) {
	ctx := testContext(t, &Services{
		LLM: &llm.Static{Responses: []string{"Wrote handler and tests."}},
	})

	u, err := ImplementerNode(ctx, implementState())
	if err != nil {
		t.Fatalf("ImplementerNode: %v", err)
	}
	if u.Status == nil || *u.Status != StatusImplementationReady {
		t.Errorf("Status = %v, want implementation_ready", u.Status)
	}
	if u.Codegen == nil || u.Codegen.Output != "Wrote handler and tests." {
		t.Errorf("Codegen = %+v", u.Codegen)
	}
	if u.Codegen.ErrorOutput != "" {
		t.Errorf("unexpected error output %q", u.Codegen.ErrorOutput)
	}
	if u.IterationCount == nil || *u.IterationCount != 1 {
		t.Errorf("IterationCount = %v, want 1", u.IterationCount)
	}
	if u.SetReviewFeedback == nil || len(u.SetReviewFeedback) != 0 {
		t.Errorf("stale feedback not cleared: %v", u.SetReviewFeedback)
	}
}

func TestImplementerNode_GenerationFailureIsModeled(t *testing.T) {
	ctx := testContext(t, &Services{LLM: &llm.Static{Err: errors.New("cli crashed")}})

	u, err := ImplementerNode(ctx, implementState())
	if err != nil {
		t.Fatalf("ImplementerNode: %v", err)
	}
	if u.Codegen == nil || u.Codegen.ErrorOutput != "cli crashed" {
		t.Errorf("Codegen = %+v", u.Codegen)
	}
	if u.Status == nil || *u.Status != StatusImplementationReady {
		t.Errorf("Status = %v, want implementation_ready", u.Status)
	}
}

func TestImplementerNode_RequiresWorkspace(t *testing.T) {
	ctx := testContext(t, &Services{LLM: &llm.Static{Responses: []string{"ok"}}})
	if _, err := ImplementerNode(ctx, NewState("task")); err == nil {
		t.Error("expected error for missing workspace")
	}
}

func TestImplementTemplate(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  string
	}{
		{"default backend", State{}, "implement_backend"},
		{
			"contract request without stack",
			State{RequestType: RequestRequiresContract},
			"implement_contract",
		},
		{
			"frontend work item",
			State{WorkItems: []WorkItem{{Kind: KindFrontend}}},
			"implement_frontend",
		},
		{
			"work item wins over request type",
			State{
				RequestType: RequestRequiresContract,
				WorkItems:   []WorkItem{{Kind: KindBackend}},
			},
			"implement_backend",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := implementTemplate(tt.state); got != tt.want {
				t.Errorf("implementTemplate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSpecContent(t *testing.T) {
	s := implementState()
	s.Contract = "the draft"
	s.TechSpec = &TechSpec{Raw: "the spec"}
	if got := specContent(s); got != "the draft" {
		t.Errorf("with contract: %q", got)
	}

	s.Contract = ""
	if got := specContent(s); got != "the spec" {
		t.Errorf("with tech spec: %q", got)
	}

	s.TechSpec = nil
	if got := specContent(s); got != "spec body" {
		t.Errorf("with issue only: %q", got)
	}
}

func TestValidatorNode(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		want    Status
		wantErr bool
	}{
		{
			name:    "no attempt",
			state:   State{},
			wantErr: true,
		},
		{
			name:  "clean output passes",
			state: State{Codegen: &CodegenResult{Output: "done"}},
			want:  StatusReviewing,
		},
		{
			name: "errors loop to corrector",
			state: State{
				Codegen:         &CodegenResult{ErrorOutput: "2 tests failed"},
				CorrectionCount: 1,
			},
			want: StatusNeedsCorrection,
		},
		{
			name: "correction ceiling forces review",
			state: State{
				Codegen:         &CodegenResult{ErrorOutput: "still failing"},
				CorrectionCount: MaxCorrections,
			},
			want: StatusReviewing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := ValidatorNode(context.Background(), tt.state)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatorNode error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if u.Status == nil || *u.Status != tt.want {
				t.Errorf("Status = %v, want %s", u.Status, tt.want)
			}
		})
	}
}

func TestCorrectorNode(t *testing.T) {
	ctx := testContext(t, &Services{
		LLM: &llm.Static{Responses: []string{"Fixed the failing tests."}},
	})
	s := implementState()
	s.Codegen = &CodegenResult{ErrorOutput: "2 tests failed"}
	s.CorrectionCount = 1

	u, err := CorrectorNode(ctx, s)
	if err != nil {
		t.Fatalf("CorrectorNode: %v", err)
	}
	if u.CorrectionCount == nil || *u.CorrectionCount != 2 {
		t.Errorf("CorrectionCount = %v, want 2", u.CorrectionCount)
	}
	if u.Status == nil || *u.Status != StatusImplementationReady {
		t.Errorf("Status = %v", u.Status)
	}
	if u.Codegen == nil || u.Codegen.ErrorOutput != "" {
		t.Errorf("Codegen = %+v", u.Codegen)
	}
	if len(u.AppendMessages) != 1 || !strings.Contains(u.AppendMessages[0], "Correction 2 applied") {
		t.Errorf("messages = %v", u.AppendMessages)
	}
}

func TestCorrectorNode_FailureIsModeled(t *testing.T) {
	ctx := testContext(t, &Services{LLM: &llm.Static{Err: errors.New("cli crashed")}})
	s := implementState()
	s.Codegen = &CodegenResult{ErrorOutput: "2 tests failed"}

	u, err := CorrectorNode(ctx, s)
	if err != nil {
		t.Fatalf("CorrectorNode: %v", err)
	}
	if u.Codegen == nil || u.Codegen.ErrorOutput != "cli crashed" {
		t.Errorf("Codegen = %+v", u.Codegen)
	}
	if u.CorrectionCount == nil || *u.CorrectionCount != 1 {
		t.Errorf("CorrectionCount = %v, want 1", u.CorrectionCount)
	}
}
