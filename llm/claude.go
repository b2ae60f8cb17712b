package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Claude CLI errors.
var (
	// ErrClaudeNotFound indicates the claude CLI binary was not found.
	ErrClaudeNotFound = errors.New("claude CLI not found")

	// ErrClaudeTimeout indicates the claude CLI execution timed out.
	ErrClaudeTimeout = errors.New("claude CLI timed out")

	// ErrClaudeFailed indicates the claude CLI exited with an error.
	ErrClaudeFailed = errors.New("claude CLI failed")
)

// ClaudeCLI runs the claude CLI headlessly and implements Generator.
type ClaudeCLI struct {
	binaryPath string
	model      string
	timeout    time.Duration
	maxTurns   int
}

// ClaudeConfig configures the CLI wrapper.
type ClaudeConfig struct {
	BinaryPath string        // default "claude"
	Model      string        // empty = CLI default
	Timeout    time.Duration // default 5m
	MaxTurns   int           // default 10
}

// NewClaudeCLI creates the wrapper, verifying the binary is installed.
func NewClaudeCLI(cfg ClaudeConfig) (*ClaudeCLI, error) {
	binaryPath := cfg.BinaryPath
	if binaryPath == "" {
		binaryPath = "claude"
	}
	if _, err := exec.LookPath(binaryPath); err != nil {
		return nil, ErrClaudeNotFound
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	maxTurns := cfg.MaxTurns
	if maxTurns == 0 {
		maxTurns = 10
	}

	return &ClaudeCLI{
		binaryPath: binaryPath,
		model:      cfg.Model,
		timeout:    timeout,
		maxTurns:   maxTurns,
	}, nil
}

// genConfig holds per-call settings.
type genConfig struct {
	systemPrompt    string
	workDir         string
	model           string
	maxTurns        int
	timeout         time.Duration
	allowedTools    []string
	disallowedTools []string
	readOnly        bool
}

// Option configures a single Generate call.
type Option func(*genConfig)

// WithSystemPrompt sets the system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(cfg *genConfig) { cfg.systemPrompt = prompt }
}

// WithWorkDir sets the working directory the CLI runs in.
func WithWorkDir(dir string) Option {
	return func(cfg *genConfig) { cfg.workDir = dir }
}

// WithModel overrides the model for this call.
func WithModel(model string) Option {
	return func(cfg *genConfig) { cfg.model = model }
}

// WithMaxTurns limits agentic turns for this call.
func WithMaxTurns(n int) Option {
	return func(cfg *genConfig) { cfg.maxTurns = n }
}

// WithTimeout overrides the timeout for this call.
func WithTimeout(d time.Duration) Option {
	return func(cfg *genConfig) { cfg.timeout = d }
}

// WithAllowedTools whitelists CLI tools for this call.
func WithAllowedTools(tools ...string) Option {
	return func(cfg *genConfig) { cfg.allowedTools = append(cfg.allowedTools, tools...) }
}

// WithDisallowedTools blacklists CLI tools for this call.
func WithDisallowedTools(tools ...string) Option {
	return func(cfg *genConfig) { cfg.disallowedTools = append(cfg.disallowedTools, tools...) }
}

// ReadOnly forbids every file-mutating tool. Planning calls use this so a
// specification pass can never touch the checkout.
func ReadOnly() Option {
	return func(cfg *genConfig) { cfg.readOnly = true }
}

// Generate runs the CLI once and returns its final output.
func (c *ClaudeCLI) Generate(ctx context.Context, prompt string, opts ...Option) (*Result, error) {
	cfg := &genConfig{
		timeout:  c.timeout,
		maxTurns: c.maxTurns,
		model:    c.model,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	args := c.buildArgs(cfg, prompt)

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	if cfg.workDir != "" {
		cmd.Dir = cfg.workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: after %v", ErrClaudeTimeout, cfg.timeout)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", ErrClaudeFailed, msg)
		}
		return nil, fmt.Errorf("%w: %v", ErrClaudeFailed, err)
	}

	result, perr := parseCLIOutput(stdout.Bytes())
	if perr != nil {
		// CLI versions differ in output format; fall back to raw text.
		result = &Result{Output: strings.TrimSpace(stdout.String())}
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	return result, nil
}

func (c *ClaudeCLI) buildArgs(cfg *genConfig, prompt string) []string {
	args := []string{"--print", "--output-format", "json"}

	if cfg.model != "" {
		args = append(args, "--model", cfg.model)
	}
	if cfg.systemPrompt != "" {
		args = append(args, "--system-prompt", cfg.systemPrompt)
	}
	if cfg.maxTurns > 0 {
		args = append(args, "--max-turns", fmt.Sprintf("%d", cfg.maxTurns))
	}
	for _, tool := range cfg.allowedTools {
		args = append(args, "--allowedTools", tool)
	}
	disallowed := cfg.disallowedTools
	if cfg.readOnly {
		disallowed = append(disallowed, "Write", "Edit", "MultiEdit", "NotebookEdit", "Bash")
	}
	for _, tool := range disallowed {
		args = append(args, "--disallowedTools", tool)
	}

	return append(args, "-p", prompt)
}

// cliOutput covers the field names different CLI versions emit.
type cliOutput struct {
	Result       string  `json:"result"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TokensIn     int     `json:"tokens_in"`
	TokensOut    int     `json:"tokens_out"`
	Cost         float64 `json:"cost"`
	CostUSD      float64 `json:"cost_usd"`
}

func parseCLIOutput(data []byte) (*Result, error) {
	data = bytes.TrimSpace(data)

	var out cliOutput
	if err := json.Unmarshal(data, &out); err != nil {
		start := bytes.IndexByte(data, '{')
		end := bytes.LastIndexByte(data, '}')
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no json found in output")
		}
		if err := json.Unmarshal(data[start:end+1], &out); err != nil {
			return nil, fmt.Errorf("parse json output: %w", err)
		}
	}

	tokensIn := out.TokensIn
	if tokensIn == 0 {
		tokensIn = out.InputTokens
	}
	tokensOut := out.TokensOut
	if tokensOut == 0 {
		tokensOut = out.OutputTokens
	}
	cost := out.Cost
	if cost == 0 {
		cost = out.CostUSD
	}

	return &Result{
		Output:    out.Result,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		Cost:      cost,
	}, nil
}
