package factoryflow

// Update is a partial state update returned by a pipeline step. Nil pointer
// fields and nil slices leave the corresponding state field untouched; set
// fields overwrite it wholesale. Merging is last-writer-wins with no way to
// unset a field back to its zero value, so steps that need to clear a slice
// use the Set* forms with an empty (non-nil) value.
type Update struct {
	Phase       *Phase
	Status      *Status
	RequestType *RequestType

	TaskDescription *string
	Workspace       *string

	IterationCount  *int
	CorrectionCount *int

	// SetReviewFeedback replaces the whole feedback list; drafting steps
	// pass an empty non-nil slice to clear it. AppendReviewFeedback adds
	// entries, which is what reviewers do.
	SetReviewFeedback    []ReviewFeedback
	AppendReviewFeedback []ReviewFeedback

	Contract *string

	SetWorkItems     []WorkItem
	SetWorkItem      *WorkItemUpdate
	CurrentWorkIndex *int
	StackBaseBranch  *string

	PRD         *PRD
	PRDFeedback *string
	TechSpec    *TechSpec
	Codegen     *CodegenResult

	PRURL           *string
	EphemeralDBURL  *string
	PreviewURL      *string
	EphemeralStatus *Outcome
	TestStatus      *Outcome
	TestDetail      *string
	TelemetryStatus *string
	ErrorCount      *int
	RevertStatus    *Outcome
	RevertDetail    *string

	// AppendMessages is the only operation on the progress log. Messages
	// are never replaced or removed.
	AppendMessages []string
}

// WorkItemUpdate patches fields of a single work item in place.
type WorkItemUpdate struct {
	Index      int
	Status     *WorkItemStatus
	BranchName *string
}

// Apply folds an update into the state and returns the result. It is pure:
// the receiver is unchanged and applying the zero Update returns an equal
// state. Set fields are last-writer-wins; Append fields accumulate.
func (s State) Apply(u Update) State {
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	if u.Phase != nil {
		s.Phase = *u.Phase
	}
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.RequestType != nil {
		s.RequestType = *u.RequestType
	}
	setStr(&s.TaskDescription, u.TaskDescription)
	setStr(&s.Workspace, u.Workspace)
	setInt(&s.IterationCount, u.IterationCount)
	setInt(&s.CorrectionCount, u.CorrectionCount)

	if u.SetReviewFeedback != nil {
		s.ReviewFeedback = cloneSlice(u.SetReviewFeedback)
	}
	if len(u.AppendReviewFeedback) > 0 {
		s.ReviewFeedback = append(cloneSlice(s.ReviewFeedback), u.AppendReviewFeedback...)
	}

	setStr(&s.Contract, u.Contract)

	if u.SetWorkItems != nil {
		s.WorkItems = cloneSlice(u.SetWorkItems)
	}
	if u.SetWorkItem != nil && u.SetWorkItem.Index >= 0 && u.SetWorkItem.Index < len(s.WorkItems) {
		items := cloneSlice(s.WorkItems)
		item := &items[u.SetWorkItem.Index]
		if u.SetWorkItem.Status != nil {
			item.Status = *u.SetWorkItem.Status
		}
		setStr(&item.BranchName, u.SetWorkItem.BranchName)
		s.WorkItems = items
	}
	setInt(&s.CurrentWorkIndex, u.CurrentWorkIndex)
	setStr(&s.StackBaseBranch, u.StackBaseBranch)

	if u.PRD != nil {
		s.PRD = u.PRD
	}
	setStr(&s.PRDFeedback, u.PRDFeedback)
	if u.TechSpec != nil {
		s.TechSpec = u.TechSpec
	}
	if u.Codegen != nil {
		s.Codegen = u.Codegen
	}

	setStr(&s.PRURL, u.PRURL)
	setStr(&s.EphemeralDBURL, u.EphemeralDBURL)
	setStr(&s.PreviewURL, u.PreviewURL)
	if u.EphemeralStatus != nil {
		s.EphemeralStatus = *u.EphemeralStatus
	}
	if u.TestStatus != nil {
		s.TestStatus = *u.TestStatus
	}
	setStr(&s.TestDetail, u.TestDetail)
	setStr(&s.TelemetryStatus, u.TelemetryStatus)
	setInt(&s.ErrorCount, u.ErrorCount)
	if u.RevertStatus != nil {
		s.RevertStatus = *u.RevertStatus
	}
	setStr(&s.RevertDetail, u.RevertDetail)

	if len(u.AppendMessages) > 0 {
		s.Messages = append(cloneSlice(s.Messages), u.AppendMessages...)
	}

	return s
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// Pointer helpers for building updates.

func ptr[T any](v T) *T { return &v }

func statusUpdate(st Status, msgs ...string) Update {
	return Update{Status: &st, AppendMessages: msgs}
}
