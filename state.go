package factoryflow

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/randalmurphal/factoryflow/tracker"
)

// =============================================================================
// Enumerations
// =============================================================================

// Status is the pipeline-level lifecycle status of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusClassified Status = "classified"

	// Architecture and drafting loop.
	StatusArchitected Status = "architected"
	StatusDrafting    Status = "drafting"
	StatusReviewing   Status = "reviewing"
	StatusApproved    Status = "approved"
	StatusFailed      Status = "failed"

	// Branch-stack progression.
	StatusWorkingContract Status = "working_contract"
	StatusWorkingBackend  Status = "working_backend"
	StatusWorkingFrontend Status = "working_frontend"
	StatusPublished       Status = "published"
	StatusStackComplete   Status = "stack_complete"

	// Post-publish lifecycle.
	StatusDeployed Status = "deployed"
	StatusReverted Status = "reverted"
	StatusComplete Status = "complete"

	// Document-first phases.
	StatusPRDReady                Status = "prd_ready"
	StatusAwaitingPRDReview       Status = "awaiting_prd_review"
	StatusSpecReady               Status = "spec_ready"
	StatusSpecFailed              Status = "spec_failed"
	StatusAwaitingTechnicalReview Status = "awaiting_technical_review"

	// Implementation phase.
	StatusImplementationReady Status = "implementation_ready"
	StatusNeedsCorrection     Status = "needs_correction"
)

// RequestType classifies what kind of work a task needs.
type RequestType string

const (
	RequestGeneral          RequestType = "general"
	RequestRequiresContract RequestType = "requires_contract"
	RequestInfrastructure   RequestType = "infrastructure"
)

// WorkItemKind identifies which layer of the system a work item touches.
type WorkItemKind string

const (
	KindContract WorkItemKind = "CONTRACT"
	KindBackend  WorkItemKind = "BACKEND"
	KindFrontend WorkItemKind = "FRONTEND"
)

// WorkItemStatus tracks a single work item through the stack.
type WorkItemStatus string

const (
	WorkItemPending    WorkItemStatus = "pending"
	WorkItemInProgress WorkItemStatus = "in_progress"
	WorkItemCompleted  WorkItemStatus = "completed"
	WorkItemFailed     WorkItemStatus = "failed"
)

// Phase selects which pipeline variant a run executes.
type Phase string

const (
	PhaseDirect    Phase = "direct"
	PhasePRD       Phase = "prd"
	PhaseSpec      Phase = "spec"
	PhaseImplement Phase = "implement"
)

// Outcome records how an optional post-publish stage went. These stages
// degrade to skipped rather than failing the run.
type Outcome string

const (
	OutcomeUnknown Outcome = ""
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeTimeout Outcome = "timeout"
)

// Telemetry verdicts.
const (
	TelemetryHealthy    = "healthy"
	TelemetryErrorSpike = "error_spike"
	TelemetrySkipped    = "skipped"
)

// =============================================================================
// Records
// =============================================================================

// WorkItem is one unit of the architect's breakdown, implemented on its own
// branch in dependency order.
type WorkItem struct {
	Kind               WorkItemKind   `json:"kind"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	AcceptanceCriteria []string       `json:"acceptanceCriteria,omitempty"`
	DependsOn          []string       `json:"dependsOn,omitempty"`
	BranchName         string         `json:"branchName,omitempty"`
	Status             WorkItemStatus `json:"status"`
}

// ReviewFeedback is one reviewer's verdict on the current artifact.
type ReviewFeedback struct {
	Agent       string   `json:"agent"`
	Approved    bool     `json:"approved"`
	Concerns    []string `json:"concerns,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// UserStory is one "As a [user], I want [goal], so that [benefit]" entry
// of a PRD.
type UserStory struct {
	ID     string `json:"id"`
	AsA    string `json:"as_a"`
	IWant  string `json:"i_want"`
	SoThat string `json:"so_that"`
}

// AcceptanceCriterion is a Gherkin scenario tied to a user story.
type AcceptanceCriterion struct {
	ID       string `json:"id"`
	StoryID  string `json:"story_id"`
	Scenario string `json:"scenario"`
	Given    string `json:"given"`
	When     string `json:"when"`
	Then     string `json:"then"`
}

// PRD is a product requirements document produced by the product manager.
// Field tags match the model's JSON output.
type PRD struct {
	Title              string                `json:"title"`
	ProblemStatement   string                `json:"problem_statement"`
	UserStories        []UserStory           `json:"user_stories,omitempty"`
	AcceptanceCriteria []AcceptanceCriterion `json:"acceptance_criteria,omitempty"`
	EdgeCases          []string              `json:"edge_cases,omitempty"`
	OutOfScope         []string              `json:"out_of_scope,omitempty"`
	SuccessMetrics     []string              `json:"success_metrics,omitempty"`
	Priority           string                `json:"priority,omitempty"`
	Complexity         string                `json:"estimated_complexity,omitempty"`
}

// TechSpec is a technical specification derived from an approved PRD. The
// schema differs per request type, so only the common fields are parsed;
// Raw keeps the full JSON for kind-specific formatting.
type TechSpec struct {
	Title           string `json:"title"`
	EstimatedEffort string `json:"estimated_effort,omitempty"`
	Raw             string `json:"raw,omitempty"`
}

// CodegenResult captures one headless code-generation attempt. A non-empty
// ErrorOutput is a modeled failure the validator routes on, not a defect.
type CodegenResult struct {
	Output      string `json:"output,omitempty"`
	ErrorOutput string `json:"errorOutput,omitempty"`
}

// =============================================================================
// State
// =============================================================================

// State is the complete pipeline state threaded through the graph. Steps
// never mutate it; they return an Update merged by Apply.
type State struct {
	// Identification
	RunID string `json:"runId"`
	Phase Phase  `json:"phase"`

	// Input
	TaskDescription string         `json:"taskDescription"`
	Issue           *tracker.Issue `json:"issue,omitempty"`
	Workspace       string         `json:"workspace,omitempty"`

	// Classification and lifecycle
	RequestType RequestType `json:"requestType,omitempty"`
	Status      Status      `json:"status"`

	// Drafting loop
	IterationCount  int              `json:"iterationCount"`
	CorrectionCount int              `json:"correctionCount"`
	ReviewFeedback  []ReviewFeedback `json:"reviewFeedback,omitempty"`
	Contract        string           `json:"contract,omitempty"`

	// Work-item stack
	WorkItems        []WorkItem `json:"workItems,omitempty"`
	CurrentWorkIndex int        `json:"currentWorkIndex"`
	StackBaseBranch  string     `json:"stackBaseBranch,omitempty"`

	// Documents
	PRD         *PRD      `json:"prd,omitempty"`
	PRDFeedback string    `json:"prdFeedback,omitempty"`
	TechSpec    *TechSpec `json:"techSpec,omitempty"`

	// Implementation
	Codegen *CodegenResult `json:"codegen,omitempty"`

	// Publish and post-publish
	PRURL           string  `json:"prUrl,omitempty"`
	EphemeralDBURL  string  `json:"ephemeralDbUrl,omitempty"`
	PreviewURL      string  `json:"previewUrl,omitempty"`
	EphemeralStatus Outcome `json:"ephemeralStatus,omitempty"`
	TestStatus      Outcome `json:"testStatus,omitempty"`
	TestDetail      string  `json:"testDetail,omitempty"`
	TelemetryStatus string  `json:"telemetryStatus,omitempty"`
	ErrorCount      int     `json:"errorCount,omitempty"`
	RevertStatus    Outcome `json:"revertStatus,omitempty"`
	RevertDetail    string  `json:"revertDetail,omitempty"`

	// Progress log, append-only
	Messages []string `json:"messages,omitempty"`
}

// NewState creates the initial state for a task.
func NewState(task string) State {
	return State{
		RunID:           generateRunID(),
		Phase:           PhaseDirect,
		TaskDescription: task,
		Status:          StatusPending,
	}
}

// WithIssue attaches the tracker issue that originated this run.
func (s State) WithIssue(issue *tracker.Issue) State {
	s.Issue = issue
	return s
}

// WithPhase selects the pipeline variant for this run.
func (s State) WithPhase(phase Phase) State {
	s.Phase = phase
	return s
}

// WithWorkspace sets the repository checkout the run operates in.
func (s State) WithWorkspace(dir string) State {
	s.Workspace = dir
	return s
}

// CurrentWorkItem returns the work item under the cursor, if any.
func (s State) CurrentWorkItem() (WorkItem, bool) {
	if s.CurrentWorkIndex < 0 || s.CurrentWorkIndex >= len(s.WorkItems) {
		return WorkItem{}, false
	}
	return s.WorkItems[s.CurrentWorkIndex], true
}

// StackExhausted reports whether every work item has been visited.
func (s State) StackExhausted() bool {
	return s.CurrentWorkIndex >= len(s.WorkItems)
}

// AllApproved reports whether every recorded review approved the current
// artifact. An empty feedback list is not approval.
func (s State) AllApproved() bool {
	if len(s.ReviewFeedback) == 0 {
		return false
	}
	for _, fb := range s.ReviewFeedback {
		if !fb.Approved {
			return false
		}
	}
	return true
}

// UnapprovedFeedback returns the reviews the next draft must address.
func (s State) UnapprovedFeedback() []ReviewFeedback {
	var out []ReviewFeedback
	for _, fb := range s.ReviewFeedback {
		if !fb.Approved {
			out = append(out, fb)
		}
	}
	return out
}

// =============================================================================
// Validation
// =============================================================================

// StateRequirement names a field that must be populated before a step runs.
type StateRequirement string

const (
	RequireTask      StateRequirement = "taskDescription"
	RequireIssue     StateRequirement = "issue"
	RequireWorkItems StateRequirement = "workItems"
	RequireContract  StateRequirement = "contract"
	RequirePRD       StateRequirement = "prd"
	RequireTechSpec  StateRequirement = "techSpec"
	RequireWorkspace StateRequirement = "workspace"
	RequirePRURL     StateRequirement = "prUrl"
)

// Validate checks that the named requirements are satisfied.
func (s State) Validate(requirements ...StateRequirement) error {
	var missing []string
	for _, req := range requirements {
		ok := true
		switch req {
		case RequireTask:
			ok = s.TaskDescription != ""
		case RequireIssue:
			ok = s.Issue != nil
		case RequireWorkItems:
			ok = len(s.WorkItems) > 0
		case RequireContract:
			ok = s.Contract != ""
		case RequirePRD:
			ok = s.PRD != nil
		case RequireTechSpec:
			ok = s.TechSpec != nil
		case RequireWorkspace:
			ok = s.Workspace != ""
		case RequirePRURL:
			ok = s.PRURL != ""
		default:
			return fmt.Errorf("unknown state requirement %q", req)
		}
		if !ok {
			missing = append(missing, string(req))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("state missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Summary returns a one-line description for logs.
func (s State) Summary() string {
	return fmt.Sprintf("run=%s phase=%s status=%s type=%s iter=%d items=%d/%d",
		s.RunID, s.Phase, s.Status, s.RequestType,
		s.IterationCount, s.CurrentWorkIndex, len(s.WorkItems))
}

const runIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func generateRunID() string {
	id, err := gonanoid.Generate(runIDAlphabet, 12)
	if err != nil {
		// Only reachable if the system entropy source is broken.
		panic(fmt.Sprintf("generate run id: %v", err))
	}
	return "run_" + id
}
