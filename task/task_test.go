package task

import (
	"testing"

	"github.com/randalmurphal/llmkit/model"
)

func TestSelectModel(t *testing.T) {
	tests := []struct {
		tt   Type
		want model.ModelName
	}{
		{Architecture, model.ModelOpus},
		{Plan, model.ModelOpus},
		{PRD, model.ModelOpus},
		{Draft, model.ModelSonnet},
		{Review, model.ModelSonnet},
		{Implement, model.ModelSonnet},
		{Correct, model.ModelSonnet},
		{Classify, model.ModelHaiku},
		{Type("unknown"), model.ModelSonnet},
	}
	for _, tt := range tests {
		if got := SelectModel(tt.tt); got != tt.want {
			t.Errorf("SelectModel(%s) = %s, want %s", tt.tt, got, tt.want)
		}
	}
}
