package factoryflow

import (
	"reflect"
	"testing"
)

func TestApply_ZeroUpdateIsIdentity(t *testing.T) {
	s := NewState("add rate limiting")
	s.Status = StatusReviewing
	s.IterationCount = 2
	s.ReviewFeedback = []ReviewFeedback{{Agent: "security", Approved: true}}
	s.WorkItems = []WorkItem{{Kind: KindContract, Title: "API contract"}}
	s.Messages = []string{"classified"}

	got := s.Apply(Update{})

	if !reflect.DeepEqual(got, s) {
		t.Errorf("zero update changed state:\n got  %+v\n want %+v", got, s)
	}
}

func TestApply_DoesNotMutateReceiver(t *testing.T) {
	s := NewState("task")
	s.ReviewFeedback = []ReviewFeedback{{Agent: "security"}}
	s.Messages = []string{"one"}

	_ = s.Apply(Update{
		Status:               ptr(StatusFailed),
		AppendReviewFeedback: []ReviewFeedback{{Agent: "design"}},
		AppendMessages:       []string{"two"},
	})

	if s.Status != StatusPending {
		t.Errorf("receiver status mutated to %s", s.Status)
	}
	if len(s.ReviewFeedback) != 1 || len(s.Messages) != 1 {
		t.Errorf("receiver slices mutated: feedback=%d messages=%d",
			len(s.ReviewFeedback), len(s.Messages))
	}
}

func TestApply_ScalarsLastWriterWins(t *testing.T) {
	s := NewState("task")
	s.Status = StatusDrafting
	s.Contract = "v1"

	got := s.Apply(Update{
		Status:         ptr(StatusReviewing),
		Contract:       ptr("v2"),
		IterationCount: ptr(3),
	})

	if got.Status != StatusReviewing {
		t.Errorf("Status = %s", got.Status)
	}
	if got.Contract != "v2" {
		t.Errorf("Contract = %q", got.Contract)
	}
	if got.IterationCount != 3 {
		t.Errorf("IterationCount = %d", got.IterationCount)
	}
}

func TestApply_AppendMessagesAccumulates(t *testing.T) {
	s := NewState("task")

	s = s.Apply(Update{AppendMessages: []string{"first"}})
	s = s.Apply(Update{AppendMessages: []string{"second", "third"}})

	want := []string{"first", "second", "third"}
	if !reflect.DeepEqual(s.Messages, want) {
		t.Errorf("Messages = %v, want %v", s.Messages, want)
	}
}

func TestApply_SetReviewFeedbackClears(t *testing.T) {
	s := NewState("task")
	s.ReviewFeedback = []ReviewFeedback{
		{Agent: "security", Concerns: []string{"injection risk"}},
	}

	got := s.Apply(Update{SetReviewFeedback: []ReviewFeedback{}})

	if len(got.ReviewFeedback) != 0 {
		t.Errorf("feedback not cleared: %v", got.ReviewFeedback)
	}
}

func TestApply_AppendReviewFeedback(t *testing.T) {
	s := NewState("task")
	s.ReviewFeedback = []ReviewFeedback{{Agent: "security", Approved: true}}

	got := s.Apply(Update{
		AppendReviewFeedback: []ReviewFeedback{{Agent: "design", Approved: false}},
	})

	if len(got.ReviewFeedback) != 2 {
		t.Fatalf("feedback count = %d, want 2", len(got.ReviewFeedback))
	}
	if got.ReviewFeedback[1].Agent != "design" {
		t.Errorf("appended agent = %q", got.ReviewFeedback[1].Agent)
	}
}

func TestApply_SetWorkItemPatchesOneItem(t *testing.T) {
	s := NewState("task")
	s.WorkItems = []WorkItem{
		{Kind: KindContract, Title: "contract", Status: WorkItemPending},
		{Kind: KindBackend, Title: "backend", Status: WorkItemPending},
	}

	got := s.Apply(Update{
		SetWorkItem: &WorkItemUpdate{
			Index:      1,
			Status:     ptr(WorkItemInProgress),
			BranchName: ptr("ai/eng-42/backend"),
		},
	})

	if got.WorkItems[1].Status != WorkItemInProgress {
		t.Errorf("item status = %s", got.WorkItems[1].Status)
	}
	if got.WorkItems[1].BranchName != "ai/eng-42/backend" {
		t.Errorf("item branch = %q", got.WorkItems[1].BranchName)
	}
	if got.WorkItems[0].Status != WorkItemPending {
		t.Errorf("untouched item changed: %s", got.WorkItems[0].Status)
	}
	if s.WorkItems[1].Status != WorkItemPending {
		t.Error("receiver work item mutated")
	}
}

func TestApply_SetWorkItemOutOfRangeIgnored(t *testing.T) {
	s := NewState("task")
	s.WorkItems = []WorkItem{{Kind: KindContract}}

	got := s.Apply(Update{
		SetWorkItem: &WorkItemUpdate{Index: 5, Status: ptr(WorkItemCompleted)},
	})

	if !reflect.DeepEqual(got.WorkItems, s.WorkItems) {
		t.Errorf("out-of-range patch changed items: %v", got.WorkItems)
	}
}

func TestApply_SetWorkItemsReplacesList(t *testing.T) {
	s := NewState("task")
	s.WorkItems = []WorkItem{{Kind: KindContract}}

	items := []WorkItem{
		{Kind: KindBackend, Title: "service"},
		{Kind: KindFrontend, Title: "ui"},
	}
	got := s.Apply(Update{SetWorkItems: items, CurrentWorkIndex: ptr(0)})

	if len(got.WorkItems) != 2 || got.WorkItems[0].Kind != KindBackend {
		t.Errorf("WorkItems = %v", got.WorkItems)
	}

	// The state must hold its own copy.
	items[0].Title = "mutated"
	if got.WorkItems[0].Title != "service" {
		t.Error("state shares backing array with caller slice")
	}
}
