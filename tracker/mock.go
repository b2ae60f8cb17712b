package tracker

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an in-memory Service for tests.
type Mock struct {
	mu       sync.Mutex
	issues   map[string]*Issue
	comments map[string][]string
	nextID   int

	// FailMutations, when set, makes every mutation return it.
	FailMutations error

	// Transitions records every Transition call as "issueID -> state".
	Transitions []string
}

// NewMock creates an empty mock tracker.
func NewMock(issues ...Issue) *Mock {
	m := &Mock{
		issues:   make(map[string]*Issue),
		comments: make(map[string][]string),
	}
	for i := range issues {
		issue := issues[i]
		m.issues[issue.ID] = &issue
	}
	return m
}

func (m *Mock) IssuesInState(_ context.Context, _, stateName string) ([]Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Issue
	for _, issue := range m.issues {
		if issue.State == stateName {
			out = append(out, *issue)
		}
	}
	return out, nil
}

func (m *Mock) IssueByID(_ context.Context, id string) (*Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, ok := m.issues[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIssueNotFound, id)
	}
	cp := *issue
	return &cp, nil
}

func (m *Mock) SubIssues(_ context.Context, parentID string) ([]Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Issue
	for _, issue := range m.issues {
		if issue.ParentID == parentID {
			out = append(out, *issue)
		}
	}
	return out, nil
}

func (m *Mock) Transition(_ context.Context, issueID, stateName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailMutations != nil {
		return m.FailMutations
	}
	issue, ok := m.issues[issueID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIssueNotFound, issueID)
	}
	issue.State = stateName
	m.Transitions = append(m.Transitions, issueID+" -> "+stateName)
	return nil
}

func (m *Mock) UpdateDescription(_ context.Context, issueID, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailMutations != nil {
		return m.FailMutations
	}
	issue, ok := m.issues[issueID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIssueNotFound, issueID)
	}
	issue.Description = description
	return nil
}

func (m *Mock) AddComment(_ context.Context, issueID, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailMutations != nil {
		return m.FailMutations
	}
	if _, ok := m.issues[issueID]; !ok {
		return fmt.Errorf("%w: %s", ErrIssueNotFound, issueID)
	}
	m.comments[issueID] = append(m.comments[issueID], body)
	return nil
}

func (m *Mock) Comments(_ context.Context, issueID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.issues[issueID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrIssueNotFound, issueID)
	}
	return append([]string(nil), m.comments[issueID]...), nil
}

func (m *Mock) CreateSubIssue(_ context.Context, input SubIssueInput) (*Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailMutations != nil {
		return nil, m.FailMutations
	}
	parent, ok := m.issues[input.ParentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIssueNotFound, input.ParentID)
	}
	m.nextID++
	issue := &Issue{
		ID:          fmt.Sprintf("mock-%d", m.nextID),
		Identifier:  fmt.Sprintf("%s-%d", parent.Identifier, m.nextID),
		Title:       input.Title,
		Description: input.Description,
		State:       input.StateName,
		ParentID:    parent.ID,
	}
	m.issues[issue.ID] = issue
	cp := *issue
	return &cp, nil
}

var _ Service = (*Mock)(nil)
