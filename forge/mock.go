package forge

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an in-memory Provider for tests.
type Mock struct {
	mu       sync.Mutex
	prs      map[int]*PullRequest
	comments map[int][]string
	nextNum  int

	// CreateErr, when set, makes CreatePR fail with it.
	CreateErr error
}

// NewMock creates an empty mock provider.
func NewMock() *Mock {
	return &Mock{
		prs:      make(map[int]*PullRequest),
		comments: make(map[int][]string),
	}
}

// AddPR seeds an existing pull request.
func (m *Mock) AddPR(pr PullRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prs[pr.Number] = &pr
	if pr.Number > m.nextNum {
		m.nextNum = pr.Number
	}
}

func (m *Mock) CreatePR(_ context.Context, opts Options) (*PullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	for _, pr := range m.prs {
		if pr.Head == opts.Head && pr.State == StateOpen {
			return nil, ErrPRExists
		}
	}
	m.nextNum++
	base := opts.Base
	if base == "" {
		base = "main"
	}
	pr := &PullRequest{
		Number: m.nextNum,
		URL:    fmt.Sprintf("https://github.com/mock/repo/pull/%d", m.nextNum),
		Title:  opts.Title,
		Body:   opts.Body,
		State:  StateOpen,
		Draft:  opts.Draft,
		Head:   opts.Head,
		Base:   base,
	}
	m.prs[pr.Number] = pr
	cp := *pr
	return &cp, nil
}

func (m *Mock) GetPR(_ context.Context, number int) (*PullRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.prs[number]
	if !ok {
		return nil, ErrPRNotFound
	}
	cp := *pr
	return &cp, nil
}

func (m *Mock) AddComment(_ context.Context, number int, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prs[number]; !ok {
		return ErrPRNotFound
	}
	m.comments[number] = append(m.comments[number], body)
	return nil
}

// Comments returns the comments posted on a pull request.
func (m *Mock) Comments(number int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.comments[number]...)
}

var _ Provider = (*Mock)(nil)
