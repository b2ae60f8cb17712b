package task

import (
	"github.com/randalmurphal/llmkit/model"
)

// Type names the kind of work a pipeline stage is doing. Model selection
// keys off it.
type Type string

const (
	// Heavyweight reasoning stages.
	Architecture Type = "architecture"
	Plan         Type = "plan"
	PRD          Type = "prd"

	// Standard generation stages.
	Draft     Type = "draft"
	Review    Type = "review"
	Implement Type = "implement"
	Correct   Type = "correct"

	// Cheap, high-volume stages.
	Classify Type = "classify"
)

// SelectModel picks the model for a pipeline stage. Work-item breakdowns,
// technical specs, and PRDs get the reasoning tier; classification runs
// every poll cycle and stays on the fast tier; drafting, review, and
// codegen use the default tier. Unknown types get the default tier.
func SelectModel(t Type) model.ModelName {
	switch t {
	case Architecture, Plan, PRD:
		return model.ModelOpus
	case Classify:
		return model.ModelHaiku
	default:
		return model.ModelSonnet
	}
}
