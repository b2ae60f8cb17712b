package factoryflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/randalmurphal/factoryflow/deploy"
	"github.com/randalmurphal/factoryflow/forge"
	"github.com/randalmurphal/factoryflow/git"
	"github.com/randalmurphal/factoryflow/llm"
	"github.com/randalmurphal/factoryflow/telemetry"
	"github.com/randalmurphal/factoryflow/tracker"
)

// Canned model responses shared by the end-to-end scenarios.
const (
	classifyGeneral  = `{"classification": "general"}`
	classifyContract = `{"classification": "requires_contract"}`
	draftResponse    = `{"module": "checkout", "endpoints": ["POST /checkout"]}`
	approveResponse  = `{"approved": true, "concerns": [], "suggestions": []}`
	rejectResponse   = `{"approved": false, "concerns": ["unsafe input handling"], "suggestions": ["validate request bodies"]}`
)

// pipeline is a full set of test doubles wired into Services, so a
// scenario can run a compiled graph end to end and inspect every side
// effect afterwards.
type pipeline struct {
	gen       *llm.Static
	runner    *git.MockRunner
	forge     *forge.Mock
	tracker   *tracker.Mock
	deploy    *deploy.Mock
	telemetry *telemetry.Mock
	services  *Services
}

func newPipeline(t *testing.T, responses ...string) *pipeline {
	t.Helper()
	p := &pipeline{
		gen:       &llm.Static{Responses: responses},
		runner:    git.NewMockRunner(nil),
		forge:     forge.NewMock(),
		tracker:   tracker.NewMock(),
		deploy:    deploy.NewMock(),
		telemetry: &telemetry.Mock{Count: 3},
	}
	p.services = &Services{
		Tracker:   p.tracker,
		Forge:     p.forge,
		LLM:       p.gen,
		Repo:      testRepo(t, p.runner),
		DB:        p.deploy,
		Deployer:  p.deploy,
		Telemetry: p.telemetry,
		Runner:    p.runner,
	}
	return p
}

func (p *pipeline) ranCommand(substr string) bool {
	for _, cmd := range p.runner.Commands {
		if strings.Contains(cmd, substr) {
			return true
		}
	}
	return false
}

// =============================================================================
// Graph construction
// =============================================================================

func TestBuild_AllPhasesCompile(t *testing.T) {
	for _, phase := range []Phase{PhaseDirect, PhasePRD, PhaseSpec, PhaseImplement} {
		t.Run(string(phase), func(t *testing.T) {
			compiled, err := Build(phase)
			if err != nil {
				t.Fatalf("Build(%s): %v", phase, err)
			}
			if compiled == nil {
				t.Fatalf("Build(%s) returned nil graph", phase)
			}
		})
	}
}

func TestBuild_UnknownPhase(t *testing.T) {
	if _, err := Build(Phase("dream")); err == nil {
		t.Error("expected error for unknown phase")
	}
}

// =============================================================================
// Direct pipeline
// =============================================================================

func TestDirectPipeline_GeneralTaskToProduction(t *testing.T) {
	p := newPipeline(t, classifyGeneral, draftResponse, approveResponse)
	compiled, err := Build(PhaseDirect)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	initial := NewState("Add rate limiting to the public API").WithWorkspace(t.TempDir())
	final, err := compiled.Run(testContext(t, p.services), initial)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if final.Status != StatusDeployed {
		t.Errorf("Status = %s, want deployed", final.Status)
	}
	if final.PRURL != "https://github.com/mock/repo/pull/1" {
		t.Errorf("PRURL = %q", final.PRURL)
	}
	if final.PreviewURL != "https://preview.example.test" {
		t.Errorf("PreviewURL = %q", final.PreviewURL)
	}
	if final.EphemeralStatus != OutcomeOK || final.TestStatus != OutcomeOK {
		t.Errorf("EphemeralStatus = %s, TestStatus = %s, want ok/ok", final.EphemeralStatus, final.TestStatus)
	}
	if final.TelemetryStatus != TelemetryHealthy || final.ErrorCount != 3 {
		t.Errorf("telemetry = %s/%d, want healthy/3", final.TelemetryStatus, final.ErrorCount)
	}
	if final.IterationCount != 1 {
		t.Errorf("IterationCount = %d, want 1", final.IterationCount)
	}
	if got := p.gen.Calls(); got != 3 {
		t.Errorf("generator calls = %d, want 3 (classify, draft, review)", got)
	}

	branch := git.TaskBranch(initial.TaskDescription)
	if !p.ranCommand("push -u origin " + branch) {
		t.Errorf("branch %s was not pushed; commands: %v", branch, p.runner.Commands)
	}
	pr, err := p.forge.GetPR(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetPR: %v", err)
	}
	if pr.Head != branch || pr.Base != "main" {
		t.Errorf("PR head/base = %s/%s, want %s/main", pr.Head, pr.Base, branch)
	}
}

func TestDirectPipeline_RejectedDraftIsRedrafted(t *testing.T) {
	p := newPipeline(t, classifyGeneral, draftResponse, rejectResponse, draftResponse, approveResponse)
	compiled, err := Build(PhaseDirect)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	final, err := compiled.Run(testContext(t, p.services),
		NewState("Harden the upload endpoint").WithWorkspace(t.TempDir()))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if final.Status != StatusDeployed {
		t.Errorf("Status = %s, want deployed", final.Status)
	}
	if final.IterationCount != 2 {
		t.Errorf("IterationCount = %d, want 2", final.IterationCount)
	}
	// Redrafting clears the previous round's feedback, so only the final
	// approval survives.
	if len(final.ReviewFeedback) != 1 || !final.ReviewFeedback[0].Approved {
		t.Errorf("ReviewFeedback = %+v, want single approval", final.ReviewFeedback)
	}
	if got := p.gen.Calls(); got != 5 {
		t.Errorf("generator calls = %d, want 5", got)
	}
}

func TestDirectPipeline_IterationCeilingFailsRun(t *testing.T) {
	// The rejection response repeats forever: every draft gets rejected.
	p := newPipeline(t, classifyGeneral, rejectResponse)
	compiled, err := Build(PhaseDirect)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	final, err := compiled.Run(testContext(t, p.services),
		NewState("Rewrite everything").WithWorkspace(t.TempDir()))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if final.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", final.Status)
	}
	if final.IterationCount != MaxIterations {
		t.Errorf("IterationCount = %d, want %d", final.IterationCount, MaxIterations)
	}
	if final.PRURL != "" {
		t.Errorf("failed run published a PR: %s", final.PRURL)
	}
	if p.ranCommand("push") {
		t.Errorf("failed run pushed a branch; commands: %v", p.runner.Commands)
	}
	// classify + five draft/review rounds
	if got := p.gen.Calls(); got != 1+2*MaxIterations {
		t.Errorf("generator calls = %d, want %d", got, 1+2*MaxIterations)
	}
}

func TestDirectPipeline_StackedContractRun(t *testing.T) {
	breakdown := `{"work_items": [
		{"type": "CONTRACT", "title": "Order API contract", "description": "schema first"},
		{"type": "BACKEND", "title": "Order service", "description": "implements the contract", "depends_on": "Order API contract"}
	]}`
	// classify, breakdown, contract draft + security review,
	// backend draft + compliance and security reviews.
	p := newPipeline(t, classifyContract, breakdown,
		draftResponse, approveResponse,
		draftResponse, approveResponse, approveResponse)

	issue := tracker.Issue{ID: "iss_7", Identifier: "ENG-7", Title: "Order API", State: tracker.StateReady}
	p.tracker = tracker.NewMock(issue)
	p.services.Tracker = p.tracker

	compiled, err := Build(PhaseDirect)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	final, err := compiled.Run(testContext(t, p.services),
		NewState("Build the order API").WithIssue(&issue).WithWorkspace(t.TempDir()))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if final.Status != StatusDeployed {
		t.Errorf("Status = %s, want deployed", final.Status)
	}
	if final.StackBaseBranch != "ai/eng-7/contract" {
		t.Errorf("StackBaseBranch = %q", final.StackBaseBranch)
	}
	if final.CurrentWorkIndex != 2 {
		t.Errorf("CurrentWorkIndex = %d, want 2", final.CurrentWorkIndex)
	}
	for i, item := range final.WorkItems {
		if item.Status != WorkItemCompleted {
			t.Errorf("work item %d status = %s, want completed", i, item.Status)
		}
	}

	// The backend branch stacks on the contract branch, not on main.
	if !p.ranCommand("checkout -b ai/eng-7/backend origin/ai/eng-7/contract") {
		t.Errorf("backend branch did not fork from the stack base; commands: %v", p.runner.Commands)
	}
	contractPR, _ := p.forge.GetPR(context.Background(), 1)
	backendPR, _ := p.forge.GetPR(context.Background(), 2)
	if contractPR == nil || contractPR.Base != "main" {
		t.Errorf("contract PR base = %+v, want main", contractPR)
	}
	if backendPR == nil || backendPR.Base != "ai/eng-7/contract" {
		t.Errorf("backend PR base = %+v, want ai/eng-7/contract", backendPR)
	}

	want := issue.ID + " -> " + tracker.StateReviewPR
	var reviews int
	for _, tr := range p.tracker.Transitions {
		if tr == want {
			reviews++
		}
	}
	if reviews != 2 {
		t.Errorf("issue moved to PR review %d times, want 2; transitions: %v", reviews, p.tracker.Transitions)
	}

	if len(p.deploy.DeployedBranches) != 1 || p.deploy.DeployedBranches[0] != "ai/eng-7/backend" {
		t.Errorf("deployed branches = %v, want the top of the stack", p.deploy.DeployedBranches)
	}
}

func TestDirectPipeline_UnusableBreakdownEndsRun(t *testing.T) {
	p := newPipeline(t, classifyContract, "I refuse to produce JSON")
	compiled, err := Build(PhaseDirect)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	final, err := compiled.Run(testContext(t, p.services),
		NewState("Design a billing contract").WithWorkspace(t.TempDir()))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if final.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", final.Status)
	}
	if p.ranCommand("checkout -b") {
		t.Errorf("failed breakdown still created a branch; commands: %v", p.runner.Commands)
	}
}

func TestDirectPipeline_FailedTestsStopBeforeTelemetry(t *testing.T) {
	p := newPipeline(t, classifyGeneral, draftResponse, approveResponse)
	p.runner.Responses = map[string]git.MockResponse{
		"playwright": {Output: "1 test failed", Err: errors.New("exit status 1")},
	}

	compiled, err := Build(PhaseDirect)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	final, err := compiled.Run(testContext(t, p.services),
		NewState("Tighten session expiry").WithWorkspace(t.TempDir()))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if final.TestStatus != OutcomeFailed {
		t.Errorf("TestStatus = %s, want failed", final.TestStatus)
	}
	if !strings.Contains(final.TestDetail, "1 test failed") {
		t.Errorf("TestDetail = %q", final.TestDetail)
	}
	if final.TelemetryStatus != "" {
		t.Errorf("telemetry ran after failed tests: %s", final.TelemetryStatus)
	}
}

func TestDirectPipeline_ErrorSpikeRoutesToReverter(t *testing.T) {
	p := newPipeline(t, classifyGeneral, draftResponse, approveResponse)
	p.telemetry.Count = 500

	compiled, err := Build(PhaseDirect)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	final, err := compiled.Run(testContext(t, p.services),
		NewState("Ship the new cache layer").WithWorkspace(t.TempDir()))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if final.TelemetryStatus != TelemetryErrorSpike || final.ErrorCount != 500 {
		t.Errorf("telemetry = %s/%d, want error_spike/500", final.TelemetryStatus, final.ErrorCount)
	}
	// The spike hands off to the reverter, but the freshly opened PR is
	// not merged yet, so there is nothing to roll back.
	if final.RevertStatus != OutcomeSkipped {
		t.Errorf("RevertStatus = %s, want skipped", final.RevertStatus)
	}
	if final.RevertDetail != "pull request is not merged" {
		t.Errorf("RevertDetail = %q", final.RevertDetail)
	}
	if p.ranCommand("revert") {
		t.Errorf("unmerged PR was reverted; commands: %v", p.runner.Commands)
	}
}

// =============================================================================
// PRD pipeline
// =============================================================================

func TestPRDPipeline(t *testing.T) {
	prd := `{"title": "Report Export", "problem_statement": "Users copy data by hand.", "priority": "high"}`
	p := newPipeline(t, prd)

	issue := tracker.Issue{
		ID: "iss_9", Identifier: "ENG-9",
		Title:       "Export reports",
		Description: "Users want CSV dumps of their dashboards",
		State:       tracker.StateCreatePRD,
	}
	p.tracker = tracker.NewMock(issue)
	p.services.Tracker = p.tracker

	compiled, err := Build(PhasePRD)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	final, err := compiled.Run(testContext(t, p.services),
		NewState(issue.Title).WithIssue(&issue).WithPhase(PhasePRD))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if final.Status != StatusAwaitingPRDReview {
		t.Errorf("Status = %s, want awaiting_prd_review", final.Status)
	}
	if final.PRD == nil || final.PRD.Title != "Report Export" {
		t.Errorf("PRD = %+v", final.PRD)
	}

	updated, err := p.tracker.IssueByID(context.Background(), issue.ID)
	if err != nil {
		t.Fatalf("IssueByID: %v", err)
	}
	if !strings.HasPrefix(updated.Description, "# PRD: Report Export") {
		t.Errorf("issue description = %q, want the PRD document", updated.Description)
	}
	if updated.State != tracker.StateReviewPRD {
		t.Errorf("issue state = %q, want %q", updated.State, tracker.StateReviewPRD)
	}
	comments, _ := p.tracker.Comments(context.Background(), issue.ID)
	if len(comments) != 1 || !strings.Contains(comments[0], "CSV dumps") {
		t.Errorf("original request not preserved; comments: %v", comments)
	}
}

// =============================================================================
// Spec pipeline
// =============================================================================

func TestSpecPipeline(t *testing.T) {
	plan := `{"title": "Export pipeline", "components": ["exporter", "scheduler"], "data_flow": "dashboard query to CSV stream"}`
	p := newPipeline(t, classifyGeneral, plan)

	issue := tracker.Issue{
		ID: "iss_9", Identifier: "ENG-9",
		Title:       "Export reports",
		Description: "# PRD: Report Export\n\nApproved by a human.",
		State:       tracker.StateCreateERD,
	}
	p.tracker = tracker.NewMock(issue)
	p.services.Tracker = p.tracker

	compiled, err := Build(PhaseSpec)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	final, err := compiled.Run(testContext(t, p.services),
		NewState(issue.Title).WithIssue(&issue).WithPhase(PhaseSpec))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if final.Status != StatusAwaitingTechnicalReview {
		t.Errorf("Status = %s, want awaiting_technical_review", final.Status)
	}
	if final.TechSpec == nil || final.TechSpec.Title != "Export pipeline" {
		t.Errorf("TechSpec = %+v", final.TechSpec)
	}

	subs, err := p.tracker.SubIssues(context.Background(), issue.ID)
	if err != nil {
		t.Fatalf("SubIssues: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("got %d sub-issues, want 1", len(subs))
	}
	if subs[0].Title != "[Tech Spec] Export pipeline" {
		t.Errorf("sub-issue title = %q", subs[0].Title)
	}
	if subs[0].State != tracker.StateReviewERD {
		t.Errorf("sub-issue state = %q, want %q", subs[0].State, tracker.StateReviewERD)
	}
	if !strings.Contains(subs[0].Description, "## Components") {
		t.Errorf("sub-issue body missing spec sections: %q", subs[0].Description)
	}

	updated, _ := p.tracker.IssueByID(context.Background(), issue.ID)
	if updated.State != tracker.StateReviewERD {
		t.Errorf("parent state = %q, want %q", updated.State, tracker.StateReviewERD)
	}
}

// =============================================================================
// Implement pipeline
// =============================================================================

func TestImplementPipeline_CleanGeneration(t *testing.T) {
	p := newPipeline(t, "applied the spec to internal/export", approveResponse)

	compiled, err := Build(PhaseImplement)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	initial := NewState("Implement the export pipeline").
		WithPhase(PhaseImplement).
		WithWorkspace(t.TempDir())
	initial.TechSpec = &TechSpec{Title: "Export pipeline", Raw: `{"title": "Export pipeline"}`}

	final, err := compiled.Run(testContext(t, p.services), initial)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if final.Status != StatusDeployed {
		t.Errorf("Status = %s, want deployed", final.Status)
	}
	if final.Codegen == nil || final.Codegen.Output == "" {
		t.Errorf("Codegen = %+v", final.Codegen)
	}
	if final.CorrectionCount != 0 {
		t.Errorf("CorrectionCount = %d, want 0", final.CorrectionCount)
	}
	if final.PRURL == "" || final.PreviewURL == "" {
		t.Errorf("publish tail did not run: pr=%q preview=%q", final.PRURL, final.PreviewURL)
	}
}

func TestImplementPipeline_GenerationOutageExhaustsCorrections(t *testing.T) {
	p := newPipeline(t)
	p.gen.Err = errors.New("generation backend down")

	compiled, err := Build(PhaseImplement)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	final, err := compiled.Run(testContext(t, p.services),
		NewState("Implement the export pipeline").WithPhase(PhaseImplement).WithWorkspace(t.TempDir()))

	// Every generation and correction attempt fails; the validator gives
	// up after the correction budget and sends the run to review, where
	// there is nothing to judge.
	if err == nil {
		t.Fatal("expected the run to surface an error at review")
	}
	if !strings.Contains(err.Error(), `step "security"`) {
		t.Errorf("error = %v, want failure at the security step", err)
	}
	if final.CorrectionCount != MaxCorrections {
		t.Errorf("CorrectionCount = %d, want %d", final.CorrectionCount, MaxCorrections)
	}
	if final.Status != StatusReviewing {
		t.Errorf("Status = %s, want reviewing", final.Status)
	}
}
