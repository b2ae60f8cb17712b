// Package llm is the text-generation boundary of the pipeline. Nodes talk
// to a Generator; the production implementation shells out to the claude
// CLI, tests use Static.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Generation errors.
var (
	// ErrNoResponse indicates the generator produced no output at all.
	ErrNoResponse = errors.New("no response from generator")

	// ErrNoJSON indicates no JSON object could be located in a response.
	ErrNoJSON = errors.New("no json object in response")
)

// Result is the outcome of one generation call.
type Result struct {
	Output    string
	TokensIn  int
	TokensOut int
	Cost      float64
	ExitCode  int
}

// Generator produces text from a prompt. Implementations must be safe for
// concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ...Option) (*Result, error)
}

// Static is a canned Generator for tests. Responses are consumed in order;
// once exhausted the last one repeats. Err, when set, is returned instead.
type Static struct {
	Responses []string
	Err       error

	calls int
}

// Generate returns the next canned response.
func (s *Static) Generate(_ context.Context, _ string, _ ...Option) (*Result, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return nil, ErrNoResponse
	}
	i := s.calls
	if i >= len(s.Responses) {
		i = len(s.Responses) - 1
	}
	s.calls++
	return &Result{Output: s.Responses[i]}, nil
}

// Calls reports how many times Generate ran.
func (s *Static) Calls() int { return s.calls }

// ExtractJSON pulls the first JSON document out of a model response,
// tolerating markdown code fences and prose around it. The document may be
// an object or an array; whichever opens first wins.
func ExtractJSON(response string) (string, error) {
	text := strings.TrimSpace(response)

	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		// Skip a language tag like "json" on the fence line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		} else {
			text = rest
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexByte(text, '{')
	closer := byte('}')
	if arr := strings.IndexByte(text, '['); arr >= 0 && (start < 0 || arr < start) {
		start = arr
		closer = ']'
	}
	if start < 0 {
		return "", ErrNoJSON
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}
