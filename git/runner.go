package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// CommandRunner executes external commands. Production code uses ExecRunner;
// tests swap in MockRunner.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner { return &ExecRunner{} }

// Run executes the command in dir and returns combined output.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := buf.String()
	if err != nil {
		return output, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return output, nil
}

// MockRunner records commands and returns scripted responses.
type MockRunner struct {
	mu sync.Mutex

	// Responses maps a command substring to its canned output. The first
	// matching entry wins; unmatched commands return empty output.
	Responses map[string]MockResponse

	// Commands records every invocation as "name arg1 arg2 ...".
	Commands []string
}

// MockResponse is one scripted command result.
type MockResponse struct {
	Output string
	Err    error
}

// NewMockRunner creates a MockRunner with the given scripted responses.
func NewMockRunner(responses map[string]MockResponse) *MockRunner {
	return &MockRunner{Responses: responses}
}

// Run records the command and returns the first matching response.
func (r *MockRunner) Run(_ context.Context, _, name string, args ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmdline := name + " " + strings.Join(args, " ")
	r.Commands = append(r.Commands, cmdline)

	for substr, resp := range r.Responses {
		if strings.Contains(cmdline, substr) {
			return resp.Output, resp.Err
		}
	}
	return "", nil
}

// Ran reports whether any recorded command contains the substring.
func (r *MockRunner) Ran(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cmd := range r.Commands {
		if strings.Contains(cmd, substr) {
			return true
		}
	}
	return false
}
