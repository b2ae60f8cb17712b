package factoryflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/factoryflow/llm"
	"github.com/randalmurphal/factoryflow/task"
	"github.com/randalmurphal/factoryflow/tracker"
)

// ContractPlannerNode turns an approved PRD into an API contract
// specification.
//
// Prerequisites: state.Issue must be set
// Updates: state.TechSpec, state.Status
func ContractPlannerNode(ctx context.Context, s State) (Update, error) {
	return runPlan(ctx, s, "plan_contract")
}

// SoftwarePlannerNode turns an approved PRD into a software design
// specification.
//
// Prerequisites: state.Issue must be set
// Updates: state.TechSpec, state.Status
func SoftwarePlannerNode(ctx context.Context, s State) (Update, error) {
	return runPlan(ctx, s, "plan_software")
}

// InfraPlannerNode turns an approved PRD into an infrastructure change
// specification.
//
// Prerequisites: state.Issue must be set
// Updates: state.TechSpec, state.Status
func InfraPlannerNode(ctx context.Context, s State) (Update, error) {
	return runPlan(ctx, s, "plan_infra")
}

// runPlan fetches the reviewed PRD from the issue (the human may have
// edited it since the approval gate) and asks the model for a technical
// specification. The model gets read access to the workspace so the spec
// reflects the codebase as it is.
func runPlan(ctx context.Context, s State, templateName string) (Update, error) {
	if err := s.Validate(RequireIssue); err != nil {
		return Update{}, err
	}
	client := LLMFromContext(ctx)
	if client == nil {
		return Update{}, fmt.Errorf("llm.Generator not found in context")
	}
	svc := TrackerFromContext(ctx)
	if svc == nil {
		return Update{}, fmt.Errorf("tracker.Service not found in context")
	}

	prdContent := s.TaskDescription
	if issue, err := svc.IssueByID(ctx, s.Issue.ID); err != nil {
		slog.Warn("could not refresh issue before planning", "issue", s.Issue.Identifier, "error", err)
	} else if issue.Description != "" {
		prdContent = issue.Description
	}

	data := map[string]any{
		"Context": s.TaskDescription,
		"PRD":     prdContent,
	}
	if templateName == "plan_software" {
		if comments, err := svc.Comments(ctx, s.Issue.ID); err == nil && len(comments) > 0 {
			data["Comments"] = strings.Join(comments, "\n---\n")
		}
	}

	prompt, err := MustPromptLoaderFromContext(ctx).Render(templateName, data)
	if err != nil {
		return Update{}, fmt.Errorf("render %s prompt: %w", templateName, err)
	}

	opts := []llm.Option{
		llm.WithModel(string(task.SelectModel(task.Plan))),
		llm.ReadOnly(),
	}
	if s.Workspace != "" {
		opts = append(opts, llm.WithWorkDir(s.Workspace))
	}
	result, err := client.Generate(ctx, prompt, opts...)
	if err != nil {
		slog.Error("planning failed", "runId", s.RunID, "template", templateName, "error", err)
		return statusUpdate(StatusSpecFailed, fmt.Sprintf("Planning failed: %v", err)), nil
	}

	spec := parseTechSpec(result.Output)
	slog.Info("technical specification drafted", "runId", s.RunID, "title", spec.Title)

	u := statusUpdate(StatusSpecReady, fmt.Sprintf("Technical specification drafted: %s", spec.Title))
	u.TechSpec = spec
	return u, nil
}

// parseTechSpec keeps the full JSON document in Raw; only the common
// envelope fields are lifted out. An unparsable response still yields a
// spec so the human reviewer sees what the model produced.
func parseTechSpec(output string) *TechSpec {
	raw, err := llm.ExtractJSON(output)
	if err != nil {
		snippet := output
		if len(snippet) > 2000 {
			snippet = snippet[:2000]
		}
		return &TechSpec{Title: "Specification (unparsed)", Raw: snippet}
	}
	var spec TechSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil || spec.Title == "" {
		spec.Title = "Specification"
	}
	spec.Raw = raw
	return &spec
}

// SubIssueHandlerNode files the technical specification as a sub-issue for
// human review and parks the parent until sign-off.
//
// Prerequisites: state.Issue and state.TechSpec must be set
// Updates: state.Status
func SubIssueHandlerNode(ctx context.Context, s State) (Update, error) {
	if err := s.Validate(RequireIssue, RequireTechSpec); err != nil {
		return Update{}, err
	}
	svc := TrackerFromContext(ctx)
	if svc == nil {
		return Update{}, fmt.Errorf("tracker.Service not found in context")
	}

	sub, err := svc.CreateSubIssue(ctx, tracker.SubIssueInput{
		ParentID:    s.Issue.ID,
		Title:       fmt.Sprintf("[Tech Spec] %s", s.TechSpec.Title),
		Description: FormatSpecMarkdown(s.RequestType, s.TechSpec),
		StateName:   tracker.StateReviewERD,
	})
	if err != nil {
		return Update{}, fmt.Errorf("create spec sub-issue: %w", err)
	}

	comment := fmt.Sprintf("Technical specification ready for review: %s", sub.Identifier)
	if err := svc.AddComment(ctx, s.Issue.ID, comment); err != nil {
		slog.Warn("failed to comment spec link on parent", "issue", s.Issue.Identifier, "error", err)
	}
	if err := svc.Transition(ctx, s.Issue.ID, tracker.StateReviewERD); err != nil {
		return Update{}, fmt.Errorf("transition parent for spec review: %w", err)
	}

	slog.Info("specification filed for review", "runId", s.RunID, "subIssue", sub.Identifier)
	return statusUpdate(StatusAwaitingTechnicalReview,
		fmt.Sprintf("Specification filed as %s; awaiting technical review", sub.Identifier)), nil
}

// =============================================================================
// Specification formatting
// =============================================================================

// FormatSpecMarkdown renders a technical specification as the markdown body
// of its review sub-issue. The document shape differs per request type.
func FormatSpecMarkdown(reqType RequestType, spec *TechSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", spec.Title)
	if spec.EstimatedEffort != "" {
		fmt.Fprintf(&b, "**Estimated effort:** %s\n\n", spec.EstimatedEffort)
	}

	switch reqType {
	case RequestRequiresContract:
		formatContractSpec(&b, spec.Raw)
	case RequestInfrastructure:
		formatInfraSpec(&b, spec.Raw)
	default:
		formatSoftwareSpec(&b, spec.Raw)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func formatContractSpec(b *strings.Builder, raw string) {
	var doc struct {
		ContractName   string          `json:"contract_name"`
		Schema         json.RawMessage `json:"schema"`
		SamplePayloads json.RawMessage `json:"sample_payloads"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil || doc.ContractName == "" {
		writeRawSection(b, raw)
		return
	}
	fmt.Fprintf(b, "## Contract: %s\n\n", doc.ContractName)
	writeJSONSection(b, "Schema", doc.Schema)
	writeJSONSection(b, "Sample Payloads", doc.SamplePayloads)
}

func formatSoftwareSpec(b *strings.Builder, raw string) {
	var doc struct {
		Components   []string        `json:"components"`
		APIContracts json.RawMessage `json:"api_contracts"`
		DataFlow     string          `json:"data_flow"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil || (len(doc.Components) == 0 && doc.DataFlow == "") {
		writeRawSection(b, raw)
		return
	}
	if len(doc.Components) > 0 {
		b.WriteString("## Components\n\n")
		for _, c := range doc.Components {
			fmt.Fprintf(b, "- %s\n", c)
		}
		b.WriteString("\n")
	}
	writeJSONSection(b, "API Contracts", doc.APIContracts)
	if doc.DataFlow != "" {
		b.WriteString("## Data Flow\n\n")
		b.WriteString(doc.DataFlow)
		b.WriteString("\n\n")
	}
}

func formatInfraSpec(b *strings.Builder, raw string) {
	var doc struct {
		ResourceType    string          `json:"resource_type"`
		Resources       json.RawMessage `json:"resources"`
		EnvVars         []string        `json:"environment_variables"`
		DeploymentSteps []string        `json:"deployment_steps"`
		RollbackPlan    string          `json:"rollback_plan"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil || doc.ResourceType == "" {
		writeRawSection(b, raw)
		return
	}
	fmt.Fprintf(b, "## Resource Type\n\n%s\n\n", doc.ResourceType)
	writeJSONSection(b, "Resources", doc.Resources)
	if len(doc.EnvVars) > 0 {
		b.WriteString("## Environment Variables\n\n")
		for _, v := range doc.EnvVars {
			fmt.Fprintf(b, "- `%s`\n", v)
		}
		b.WriteString("\n")
	}
	if len(doc.DeploymentSteps) > 0 {
		b.WriteString("## Deployment Steps\n\n")
		for i, step := range doc.DeploymentSteps {
			fmt.Fprintf(b, "%d. %s\n", i+1, step)
		}
		b.WriteString("\n")
	}
	if doc.RollbackPlan != "" {
		fmt.Fprintf(b, "## Rollback Plan\n\n%s\n\n", doc.RollbackPlan)
	}
}

func writeJSONSection(b *strings.Builder, title string, raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(raw)
	}
	fmt.Fprintf(b, "## %s\n\n```json\n%s\n```\n\n", title, pretty.String())
}

func writeRawSection(b *strings.Builder, raw string) {
	b.WriteString("## Specification\n\n```json\n")
	b.WriteString(raw)
	b.WriteString("\n```\n\n")
}
