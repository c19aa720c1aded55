package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keeperbot/keeper/internal/agent"
	"github.com/keeperbot/keeper/internal/coordinator"
	"github.com/keeperbot/keeper/internal/session"
)

type scriptedRunner struct {
	calls  []agent.Request
	result *agent.Result
}

func (r *scriptedRunner) Run(ctx context.Context, req agent.Request) (*agent.Result, error) {
	r.calls = append(r.calls, req)
	return r.result, nil
}

func TestRunAgentTurnPersistsSessionAcrossInvocations(t *testing.T) {
	store, err := session.Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	runner := &scriptedRunner{result: &agent.Result{Text: "hello there", SessionID: "main-1", CostUSD: 0.01}}
	coord := coordinator.New(coordinator.Options{Store: store, Runner: runner})

	var out bytes.Buffer
	if err := runAgentTurn(context.Background(), coord, store, "cli:0", "hi", &out); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if !strings.Contains(out.String(), "hello there") {
		t.Fatalf("output = %q", out.String())
	}
	if !strings.Contains(out.String(), "session main-1") {
		t.Fatalf("output = %q", out.String())
	}

	// A second invocation resumes the stored session, like the bot does.
	out.Reset()
	if err := runAgentTurn(context.Background(), coord, store, "cli:0", "again", &out); err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("runner calls = %d", len(runner.calls))
	}
	if got := runner.calls[1].ResumeSessionID; got != "main-1" {
		t.Fatalf("second call resume = %q", got)
	}
}
