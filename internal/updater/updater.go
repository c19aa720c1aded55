// Package updater runs the knowledge-base maintenance agent after completed
// turns. All updater work is globally serialized: the KB is one shared git
// working tree, so two updater sessions must never edit it concurrently.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/keeperbot/keeper/internal/fifo"
	"github.com/keeperbot/keeper/internal/progress"
	"github.com/keeperbot/keeper/internal/session"
	"github.com/keeperbot/keeper/internal/telegram"
)

// NothingToken is the updater's literal reply when the turn left nothing
// worth recording. The status message is deleted instead of summarized.
const NothingToken = "NOTHING"

const maxReplyRoutes = 500

// SubAgent runs one updater agent call.
type SubAgent interface {
	Call(ctx context.Context, prompt, resume string) (text, sessionID string, err error)
}

// Job is one completed turn to fold into the knowledge base.
type Job struct {
	ThreadID string
	ChatID   int64
	TopicID  int64
	UserText string
	Response string
	KBDiff   string
}

// Updater serializes KB maintenance and routes replies to its status
// messages back into the originating session.
type Updater struct {
	queue     fifo.Mutex
	sub       SubAgent
	store     *session.Store
	transport progress.Transport

	mu         sync.Mutex
	replyRoute map[int64]string // status message id -> thread id
	routeOrder []int64
}

// New creates an updater.
func New(sub SubAgent, store *session.Store, transport progress.Transport) *Updater {
	return &Updater{
		sub:        sub,
		store:      store,
		transport:  transport,
		replyRoute: make(map[int64]string),
	}
}

// Run processes one job. Blocks while earlier jobs finish; callers fire it on
// its own goroutine.
func (u *Updater) Run(ctx context.Context, job Job) {
	if err := u.queue.Acquire(ctx); err != nil {
		return
	}
	defer u.queue.Release()

	tracker, err := progress.Create(ctx, u.transport, job.ChatID,
		telegram.SendOptions{ThreadID: job.TopicID}, "📝 Updating knowledge base…", progress.Options{})
	if err != nil {
		slog.Warn("Updater status message failed", "thread", job.ThreadID, "error", err)
		return
	}
	defer tracker.Destroy()

	ref, err := u.store.Get(job.ThreadID)
	if err != nil {
		slog.Warn("Updater session lookup failed", "thread", job.ThreadID, "error", err)
	}

	reply, sid, err := u.sub.Call(ctx, jobPrompt(job), ref.Updater)
	if err != nil {
		if ctx.Err() != nil {
			tracker.Delete(context.Background())
			return
		}
		slog.Warn("Updater agent failed", "thread", job.ThreadID, "error", err)
		tracker.Finish(context.Background(), "📝 KB update failed: "+boundedError(err))
		return
	}
	u.persistHandle(job.ThreadID, ref.Updater, sid)

	reply = strings.TrimSpace(reply)
	if reply == NothingToken {
		tracker.Delete(context.Background())
		return
	}
	tracker.Finish(context.Background(), "✅ "+reply)
	u.registerRoute(tracker.MessageID(), job.ThreadID)
}

// HandleReply resumes the updater session behind a status message the user
// replied to. Returns the agent's answer and whether the reply was routed.
func (u *Updater) HandleReply(ctx context.Context, repliedToID int64, text string) (string, bool, error) {
	u.mu.Lock()
	threadID, ok := u.replyRoute[repliedToID]
	u.mu.Unlock()
	if !ok {
		return "", false, nil
	}

	if err := u.queue.Acquire(ctx); err != nil {
		return "", true, err
	}
	defer u.queue.Release()

	ref, err := u.store.Get(threadID)
	if err != nil || ref.Updater == "" {
		return "", true, fmt.Errorf("updater session for thread %s not found", threadID)
	}
	reply, sid, err := u.sub.Call(ctx, text, ref.Updater)
	if err != nil {
		return "", true, err
	}
	u.persistHandle(threadID, ref.Updater, sid)
	return reply, true, nil
}

func (u *Updater) persistHandle(threadID, old, updated string) {
	if updated == "" || updated == old {
		return
	}
	if err := u.store.SetHandle(threadID, session.HandleUpdater, updated); err != nil {
		slog.Warn("Updater handle persist failed", "thread", threadID, "error", err)
	}
}

// registerRoute remembers which thread a status message belongs to, evicting
// the oldest route past the cap.
func (u *Updater) registerRoute(messageID int64, threadID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, exists := u.replyRoute[messageID]; !exists {
		u.routeOrder = append(u.routeOrder, messageID)
	}
	u.replyRoute[messageID] = threadID
	for len(u.routeOrder) > maxReplyRoutes {
		oldest := u.routeOrder[0]
		u.routeOrder = u.routeOrder[1:]
		delete(u.replyRoute, oldest)
	}
}

// boundedError keeps a failure notice short enough for a status message.
func boundedError(err error) string {
	msg := err.Error()
	const limit = 200
	if len(msg) > limit {
		n := limit
		for n > 0 && !utf8.RuneStart(msg[n]) {
			n--
		}
		msg = msg[:n] + "…"
	}
	return msg
}

func jobPrompt(job Job) string {
	var b strings.Builder
	b.WriteString("A conversation turn just completed. Record anything durable in the knowledge base.\n\n")
	fmt.Fprintf(&b, "User message:\n%s\n\n", job.UserText)
	fmt.Fprintf(&b, "Assistant response:\n%s\n", job.Response)
	if job.KBDiff != "" {
		fmt.Fprintf(&b, "\nChanges the assistant already made to the knowledge base:\n%s\n", job.KBDiff)
	}
	b.WriteString("\nReply with a one-line summary of what you recorded, or exactly " + NothingToken + " if nothing was worth recording.")
	return b.String()
}
