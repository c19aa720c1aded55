// Package agent runs the reasoning-agent CLI as a subprocess and parses its
// streamed event output.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const defaultRunTimeout = 10 * time.Minute

// Env vars the agent CLI sets in its own child processes. They must not leak
// into the subprocess or it refuses to start a nested session.
var scrubbedEnvVars = []string{"CLAUDECODE", "CLAUDE_CODE_ENTRYPOINT"}

// Request describes one agent invocation.
type Request struct {
	Prompt          string
	SystemPrompt    string
	Model           string
	ResumeSessionID string
	WorkDir         string
	AllowedTools    []string
	DisallowedTools []string
	MaxTurns        int
	Timeout         time.Duration

	// OnProgress receives a human-readable line per tool use, as the agent
	// works. May be nil.
	OnProgress func(line string)
}

// Result is the terminal outcome of one agent invocation.
type Result struct {
	Text      string
	SessionID string
	CostUSD   float64
	IsError   bool
	Subtype   string
	Denials   []string
}

// Runner executes agent invocations. The CLI-backed implementation is
// CLIRunner; tests substitute their own.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// CLIRunner invokes the agent binary with streamed JSON output.
type CLIRunner struct {
	Binary string
}

// NewCLIRunner creates a runner for the given agent binary path.
func NewCLIRunner(binary string) *CLIRunner {
	return &CLIRunner{Binary: binary}
}

// Run executes the agent once and blocks until it produces a terminal result
// or the context is cancelled.
func (r *CLIRunner) Run(ctx context.Context, req Request) (*Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Binary, buildArgs(req)...)
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	}
	cmd.Env = scrubEnv(os.Environ())
	cmd.Stdin = strings.NewReader(req.Prompt)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agent stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("agent start: %w", err)
	}

	res, streamErr := consumeStream(stdout, req.OnProgress)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if streamErr != nil {
		return nil, fmt.Errorf("agent stream: %w", streamErr)
	}
	if res == nil {
		return nil, fmt.Errorf("agent exited without a result event: %v (stderr: %s)",
			waitErr, tail(stderr.String(), 500))
	}
	if waitErr != nil && !res.IsError {
		slog.Warn("Agent exited non-zero after emitting a result", "error", waitErr)
	}
	slog.Debug("Agent run finished",
		"model", req.Model,
		"duration", time.Since(start).Round(time.Millisecond),
		"cost_usd", res.CostUSD,
		"is_error", res.IsError)
	return res, nil
}

func buildArgs(req Request) []string {
	args := []string{"-p", "--output-format", "stream-json", "--verbose"}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.ResumeSessionID != "" {
		args = append(args, "--resume", req.ResumeSessionID)
	}
	if req.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", req.SystemPrompt)
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))
	}
	if len(req.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(req.DisallowedTools, ","))
	}
	if req.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(req.MaxTurns))
	}
	return args
}

func scrubEnv(env []string) []string {
	out := env[:0:0]
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		skip := false
		for _, s := range scrubbedEnvVars {
			if name == s {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, kv)
		}
	}
	return out
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}
