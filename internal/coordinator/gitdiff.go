package coordinator

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"time"
)

const gitDiffTimeout = 15 * time.Second

// kbDiff captures the uncommitted knowledge-base changes the main agent left
// behind. Best-effort: a missing git binary or a non-repo directory yields an
// empty diff.
func kbDiff(ctx context.Context, dir string) string {
	if dir == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, gitDiffTimeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "diff")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		slog.Debug("KB git diff unavailable", "dir", dir, "error", err)
		return ""
	}
	return out.String()
}
