package retrieval

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

const defaultSearchTimeout = 30 * time.Second

// Searcher runs one knowledge-base search and returns its raw text output.
type Searcher interface {
	Search(ctx context.Context, terms ...string) (string, error)
}

// ExecSearcher shells out to the configured kb-search command.
type ExecSearcher struct {
	Command string
	Args    []string
	WorkDir string
	Timeout time.Duration
}

// Search executes the search command with the query terms appended.
func (s *ExecSearcher) Search(ctx context.Context, terms ...string) (string, error) {
	if s.Command == "" {
		return "", fmt.Errorf("search command not configured")
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, s.Args...), terms...)
	cmd := exec.CommandContext(ctx, s.Command, args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("kb search: %w", ctx.Err())
		}
		return "", fmt.Errorf("kb search: %w (stderr: %s)", err, stderr.String())
	}
	return stdout.String(), nil
}
