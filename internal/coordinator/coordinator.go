// Package coordinator serializes turn processing per conversation thread and
// owns the stop protocol: one FIFO queue and one generation counter per
// thread, with cancellation reaching every suspension point of a turn.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keeperbot/keeper/internal/agent"
	"github.com/keeperbot/keeper/internal/progress"
	"github.com/keeperbot/keeper/internal/retrieval"
	"github.com/keeperbot/keeper/internal/session"
	"github.com/keeperbot/keeper/internal/telegram"
)

// Kind classifies how a turn ended.
type Kind int

const (
	// KindCompleted: the agent produced a response to deliver.
	KindCompleted Kind = iota
	// KindSuperseded: a stop arrived while the turn was queued or running;
	// its output is dropped.
	KindSuperseded
	// KindCancelled: the caller's context ended. Not an error.
	KindCancelled
	// KindFailed: the agent call failed; Err carries the cause.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindCompleted:
		return "completed"
	case KindSuperseded:
		return "superseded"
	case KindCancelled:
		return "cancelled"
	case KindFailed:
		return "failed"
	}
	return "unknown"
}

// Turn is one inbound user message to process.
type Turn struct {
	ThreadID  string
	ChatID    int64
	TopicID   int64
	MessageID int64
	TraceID   string
	Text      string

	SystemPrompt    string
	DisallowedTools []string
	EnableRetrieval bool
	EnableKBUpdate  bool
}

// TurnResult is the outcome handed back to the transport layer.
type TurnResult struct {
	Kind     Kind
	Response string
	Denials  []string
	Err      error
}

// Retriever runs the pre-turn knowledge lookup. Satisfied by
// retrieval.Pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Result, error)
}

// Options wires a Coordinator.
type Options struct {
	Store     *session.Store
	Runner    agent.Runner
	Retriever Retriever          // nil disables retrieval entirely
	Transport progress.Transport // nil disables status messages
	KBDir     string
	WorkDir   string
	MainModel string
	IdleTTL   time.Duration

	// OnCompleted fires after a completed turn, off the turn's own
	// goroutine, with the captured KB diff. Used for the knowledge updater.
	OnCompleted func(turn Turn, response, kbDiff string)
}

// Coordinator runs turns with per-thread FIFO ordering.
type Coordinator struct {
	store       *session.Store
	runner      agent.Runner
	retriever   Retriever
	transport   progress.Transport
	kbDir       string
	workDir     string
	mainModel   string
	onCompleted func(Turn, string, string)
	reg         *registry
}

// New creates a coordinator.
func New(opts Options) *Coordinator {
	return &Coordinator{
		store:       opts.Store,
		runner:      opts.Runner,
		retriever:   opts.Retriever,
		transport:   opts.Transport,
		kbDir:       opts.KBDir,
		workDir:     opts.WorkDir,
		mainModel:   opts.MainModel,
		onCompleted: opts.OnCompleted,
		reg:         newRegistry(opts.IdleTTL),
	}
}

// RunTurn processes one message. Turns for the same thread run strictly in
// arrival order; turns for different threads run concurrently.
func (c *Coordinator) RunTurn(ctx context.Context, turn Turn) *TurnResult {
	st := c.reg.get(turn.ThreadID)
	startGen := st.generation()

	if err := st.queue.Acquire(ctx); err != nil {
		return &TurnResult{Kind: KindCancelled}
	}
	defer st.queue.Release()

	// A stop issued while this turn sat in the queue supersedes it before
	// any side effect happens.
	if st.generation() != startGen {
		slog.Info("Turn superseded while queued", "thread", turn.ThreadID, "trace", turn.TraceID)
		return &TurnResult{Kind: KindSuperseded}
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	st.setCancel(cancel)
	defer st.clearCancel()

	var tracker *progress.Tracker
	if c.transport != nil {
		tr, err := progress.Create(turnCtx, c.transport, turn.ChatID,
			telegram.SendOptions{ThreadID: turn.TopicID, ReplyToID: turn.MessageID},
			"🤔 Working…", progress.Options{})
		if err != nil {
			slog.Warn("Status message creation failed", "thread", turn.ThreadID, "error", err)
		} else {
			tracker = tr
			defer tracker.Destroy()
		}
	}
	push := func(line string) {
		if tracker != nil {
			tracker.Push(line)
		}
	}

	ref, err := c.store.Get(turn.ThreadID)
	if err != nil {
		slog.Warn("Session lookup failed, starting fresh", "thread", turn.ThreadID, "error", err)
		ref = session.Ref{ThreadID: turn.ThreadID}
	}

	prompt := turn.Text
	if c.retriever != nil && turn.EnableRetrieval {
		prompt = c.withRetrievedContext(turnCtx, turn, ref, push)
	}
	if turnCtx.Err() != nil {
		c.discard(tracker)
		return &TurnResult{Kind: KindCancelled}
	}

	res, err := c.runner.Run(turnCtx, agent.Request{
		Prompt:          prompt,
		SystemPrompt:    turn.SystemPrompt,
		Model:           c.mainModel,
		ResumeSessionID: ref.Main,
		WorkDir:         c.workDir,
		DisallowedTools: turn.DisallowedTools,
		OnProgress:      push,
	})
	if err != nil {
		if turnCtx.Err() != nil || errors.Is(err, context.Canceled) {
			c.discard(tracker)
			if st.generation() != startGen {
				return &TurnResult{Kind: KindSuperseded}
			}
			return &TurnResult{Kind: KindCancelled}
		}
		if tracker != nil {
			tracker.Finish(context.Background(), "⚠️ "+err.Error())
		}
		return &TurnResult{Kind: KindFailed, Err: err}
	}

	c.persistHandle(turn.ThreadID, session.HandleMain, ref.Main, res.SessionID)
	if res.CostUSD > 0 {
		if err := c.store.AddCost(turn.ThreadID, res.CostUSD); err != nil {
			slog.Warn("Cost accounting failed", "thread", turn.ThreadID, "error", err)
		}
	}

	diff := kbDiff(turnCtx, c.kbDir)

	// The agent call is slow; a stop may have landed during it.
	if st.generation() != startGen {
		c.discard(tracker)
		return &TurnResult{Kind: KindSuperseded}
	}

	if res.IsError {
		msg := res.Text
		if msg == "" {
			msg = res.Subtype
		}
		if tracker != nil {
			tracker.Finish(context.Background(), "⚠️ "+msg)
		}
		return &TurnResult{Kind: KindFailed, Err: fmt.Errorf("agent result: %s", msg)}
	}

	c.discard(tracker)
	if c.onCompleted != nil && turn.EnableKBUpdate {
		go c.onCompleted(turn, res.Text, diff)
	}
	return &TurnResult{Kind: KindCompleted, Response: res.Text, Denials: res.Denials}
}

// withRetrievedContext runs the lookup pipeline and prepends any found
// context to the prompt. Retrieval failure is never fatal to the turn.
func (c *Coordinator) withRetrievedContext(ctx context.Context, turn Turn, ref session.Ref, push func(string)) string {
	res, err := c.retriever.Retrieve(ctx, retrieval.Request{
		Text:       turn.Text,
		PlannerRef: ref.Planner,
		FilterRef:  ref.Filter,
		Progress:   push,
	})
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("Retrieval failed, continuing without context", "thread", turn.ThreadID, "error", err)
		}
		return turn.Text
	}
	c.persistHandle(turn.ThreadID, session.HandlePlanner, ref.Planner, res.PlannerRef)
	c.persistHandle(turn.ThreadID, session.HandleFilter, ref.Filter, res.FilterRef)
	if res.Context == "" {
		return turn.Text
	}
	return "Relevant notes from the knowledge base:\n\n" + res.Context + "\n\n---\n\n" + turn.Text
}

func (c *Coordinator) persistHandle(threadID string, h session.Handle, old, updated string) {
	if updated == "" || updated == old {
		return
	}
	if err := c.store.SetHandle(threadID, h, updated); err != nil {
		slog.Warn("Session handle persist failed", "thread", threadID, "handle", h, "error", err)
	}
}

func (c *Coordinator) discard(tracker *progress.Tracker) {
	if tracker != nil {
		tracker.Delete(context.Background())
	}
}

// Stop interrupts the thread's active turn and invalidates all queued ones.
// Returns immediately; it never waits for the interrupted work to unwind.
func (c *Coordinator) Stop(threadID string) bool {
	st := c.reg.peek(threadID)
	if st == nil {
		return false
	}
	st.interrupt()
	slog.Info("Stop issued", "thread", threadID)
	return true
}

// Generation exposes the thread's current generation so slow out-of-band work
// (queued media, late results) can detect a stop and drop its output.
func (c *Coordinator) Generation(threadID string) uint64 {
	return c.reg.get(threadID).generation()
}

// StartReaper evicts idle thread state until ctx ends.
func (c *Coordinator) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				if n := c.reg.reap(now); n > 0 {
					slog.Debug("Reaped idle threads", "count", n)
				}
			}
		}
	}()
}
