package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// linearStub answers GraphQL requests keyed by operation name substring.
func linearStub(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "test-key" {
			t.Errorf("Authorization = %q, want test-key", got)
		}
		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		for op, body := range responses {
			if strings.Contains(req.Query, op) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(body))
				return
			}
		}
		t.Errorf("unexpected query: %s", req.Query)
		http.Error(w, "unexpected query", http.StatusBadRequest)
	}))
}

func newTestLinear(t *testing.T, srv *httptest.Server) *Linear {
	t.Helper()
	l, err := NewLinear(LinearConfig{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewLinear() error = %v", err)
	}
	return l
}

func TestLinear_IssuesInState(t *testing.T) {
	srv := linearStub(t, map[string]string{
		"IssuesInState": `{"data": {"issues": {"nodes": [
            {"id": "iss_1", "identifier": "ENG-1", "title": "Add login", "description": "desc",
             "state": {"name": "AI: Ready"}, "priority": 2, "parent": null},
            {"id": "iss_2", "identifier": "ENG-2", "title": "Sub task",
             "state": {"name": "AI: Ready"}, "priority": 0, "parent": {"id": "iss_1"}}
        ]}}}`,
	})
	defer srv.Close()

	issues, err := newTestLinear(t, srv).IssuesInState(context.Background(), "ENG", StateReady)
	if err != nil {
		t.Fatalf("IssuesInState() error = %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("len(issues) = %d, want 2", len(issues))
	}
	if issues[0].Identifier != "ENG-1" || issues[0].IsSubIssue() {
		t.Errorf("issues[0] = %+v, want top-level ENG-1", issues[0])
	}
	if !issues[1].IsSubIssue() || issues[1].ParentID != "iss_1" {
		t.Errorf("issues[1] = %+v, want sub-issue of iss_1", issues[1])
	}
}

func TestLinear_IssueByID_NotFound(t *testing.T) {
	srv := linearStub(t, map[string]string{
		"IssueByID": `{"data": {"issue": null}}`,
	})
	defer srv.Close()

	_, err := newTestLinear(t, srv).IssueByID(context.Background(), "missing")
	if !errors.Is(err, ErrIssueNotFound) {
		t.Fatalf("IssueByID() error = %v, want ErrIssueNotFound", err)
	}
}

func TestLinear_Transition(t *testing.T) {
	srv := linearStub(t, map[string]string{
		"StateID":    `{"data": {"workflowStates": {"nodes": [{"id": "st_1"}]}}}`,
		"Transition": `{"data": {"issueUpdate": {"success": true}}}`,
	})
	defer srv.Close()

	if err := newTestLinear(t, srv).Transition(context.Background(), "iss_1", StateInProgress); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
}

func TestLinear_Transition_UnknownState(t *testing.T) {
	srv := linearStub(t, map[string]string{
		"StateID": `{"data": {"workflowStates": {"nodes": []}}}`,
	})
	defer srv.Close()

	err := newTestLinear(t, srv).Transition(context.Background(), "iss_1", "No Such Column")
	if !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Transition() error = %v, want ErrStateNotFound", err)
	}
}

func TestLinear_GraphQLError(t *testing.T) {
	srv := linearStub(t, map[string]string{
		"AddComment": `{"errors": [{"message": "rate limited"}]}`,
	})
	defer srv.Close()

	err := newTestLinear(t, srv).AddComment(context.Background(), "iss_1", "hello")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("AddComment() error = %v, want rate limited", err)
	}
}

func TestLinear_UpdateDescription(t *testing.T) {
	srv := linearStub(t, map[string]string{
		"UpdateDescription": `{"data": {"issueUpdate": {"success": true}}}`,
	})
	defer srv.Close()

	if err := newTestLinear(t, srv).UpdateDescription(context.Background(), "iss_1", "# PRD"); err != nil {
		t.Fatalf("UpdateDescription() error = %v", err)
	}
}

func TestLinear_UpdateDescription_Rejected(t *testing.T) {
	srv := linearStub(t, map[string]string{
		"UpdateDescription": `{"data": {"issueUpdate": {"success": false}}}`,
	})
	defer srv.Close()

	err := newTestLinear(t, srv).UpdateDescription(context.Background(), "iss_1", "# PRD")
	if !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("UpdateDescription() error = %v, want ErrMutationFailed", err)
	}
}

func TestAllSubIssuesDone(t *testing.T) {
	tests := []struct {
		name   string
		issues []Issue
		want   bool
	}{
		{
			name: "all done",
			issues: []Issue{
				{ID: "p"},
				{ID: "a", ParentID: "p", State: StateDone},
				{ID: "b", ParentID: "p", State: "Closed"},
			},
			want: true,
		},
		{
			name: "one pending",
			issues: []Issue{
				{ID: "p"},
				{ID: "a", ParentID: "p", State: StateDone},
				{ID: "b", ParentID: "p", State: StateImplement},
			},
			want: false,
		},
		{
			name:   "no children",
			issues: []Issue{{ID: "p"}},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AllSubIssuesDone(context.Background(), NewMock(tt.issues...), "p")
			if err != nil {
				t.Fatalf("AllSubIssuesDone() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("AllSubIssuesDone() = %v, want %v", got, tt.want)
			}
		})
	}
}
