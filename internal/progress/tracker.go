// Package progress maintains a live status message on the chat transport.
//
// Producers push free-text progress lines; a single consumer goroutine owns
// the debounce schedule and all transport edits, so components that report
// progress never touch the transport themselves.
package progress

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/keeperbot/keeper/internal/telegram"
)

const (
	// TrimmedMarker prefixes the status body once old lines were evicted.
	TrimmedMarker = "⋯ (earlier steps trimmed)"

	defaultFirstFlushDelay = 1500 * time.Millisecond
	defaultFlushDelay      = 1500 * time.Millisecond
	defaultMaxBodyLen      = 3800
	finishCap              = 4000
)

// Transport is the subset of the chat client the tracker needs.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// Options tunes the debounce schedule.
type Options struct {
	FirstFlushDelay time.Duration
	FlushDelay      time.Duration
	MaxBodyLen      int
}

// Tracker owns one status message and the buffered lines shown in it.
type Tracker struct {
	transport Transport
	chatID    int64
	messageID int64

	firstDelay time.Duration
	delay      time.Duration
	maxBodyLen int

	pushCh   chan string
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	dead     atomic.Bool
}

// Create sends the initial placeholder message and starts a tracker on it.
func Create(ctx context.Context, transport Transport, chatID int64, opts telegram.SendOptions, initialText string, topts Options) (*Tracker, error) {
	msg, err := transport.SendMessage(ctx, chatID, initialText, opts)
	if err != nil {
		return nil, err
	}
	return New(transport, chatID, msg.MessageID, initialText, topts), nil
}

// New starts a tracker for an already-sent status message.
func New(transport Transport, chatID, messageID int64, initialText string, opts Options) *Tracker {
	if opts.FirstFlushDelay <= 0 {
		opts.FirstFlushDelay = defaultFirstFlushDelay
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = defaultFlushDelay
	}
	if opts.MaxBodyLen <= 0 {
		opts.MaxBodyLen = defaultMaxBodyLen
	}
	t := &Tracker{
		transport:  transport,
		chatID:     chatID,
		messageID:  messageID,
		firstDelay: opts.FirstFlushDelay,
		delay:      opts.FlushDelay,
		maxBodyLen: opts.MaxBodyLen,
		pushCh:     make(chan string, 64),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go t.consume(initialText)
	return t
}

// MessageID returns the id of the status message.
func (t *Tracker) MessageID() int64 { return t.messageID }

// IsDead reports whether the status message was deleted externally.
func (t *Tracker) IsDead() bool { return t.dead.Load() }

// Push appends a progress line. Safe from any goroutine; never blocks on the
// transport.
func (t *Tracker) Push(line string) {
	select {
	case t.pushCh <- line:
	case <-t.done:
	}
}

// Finish stops the debounce loop and replaces the status message with final
// text. A pending flush can never race a terminal edit.
func (t *Tracker) Finish(ctx context.Context, text string) {
	t.stop()
	if t.dead.Load() {
		return
	}
	if len(text) > finishCap {
		n := finishCap
		for n > 0 && !utf8.RuneStart(text[n]) {
			n--
		}
		text = text[:n]
	}
	t.edit(ctx, text)
}

// Delete stops the debounce loop and removes the status message.
func (t *Tracker) Delete(ctx context.Context) {
	t.stop()
	if err := t.transport.DeleteMessage(ctx, t.chatID, t.messageID); err != nil && !errors.Is(err, telegram.ErrMessageGone) {
		slog.Debug("Progress message delete failed", "error", err)
	}
}

// Destroy stops the debounce loop without touching the message. Call in
// deferred cleanup so an abandoned tracker cannot leak its goroutine or fire
// a stale flush.
func (t *Tracker) Destroy() {
	t.stop()
}

func (t *Tracker) stop() {
	t.stopOnce.Do(func() { close(t.quit) })
	<-t.done
}

func (t *Tracker) consume(initialText string) {
	defer close(t.done)

	var lines []string
	if initialText != "" {
		lines = append(lines, initialText)
	}
	sawPush := false
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case line := <-t.pushCh:
			lines = append(lines, line)
			if timerC == nil {
				delay := t.delay
				if !sawPush {
					delay = t.firstDelay
				}
				timer = time.NewTimer(delay)
				timerC = timer.C
			}
			sawPush = true
		case <-timerC:
			timer, timerC = nil, nil
			lines = t.flush(lines)
		case <-t.quit:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// flush edits the status message to show the buffered lines, evicting the
// oldest lines while the joined body exceeds the transport cap.
func (t *Tracker) flush(lines []string) []string {
	if t.dead.Load() || len(lines) == 0 {
		return lines
	}
	body := joinLines(lines, false)
	for len(body) > t.maxBodyLen && len(lines) > 1 {
		lines = lines[1:]
		body = joinLines(lines, true)
	}
	t.edit(context.Background(), body)
	return lines
}

func joinLines(lines []string, trimmed bool) string {
	body := ""
	for i, l := range lines {
		if i > 0 {
			body += "\n"
		}
		body += l
	}
	if trimmed {
		return TrimmedMarker + "\n" + body
	}
	return body
}

func (t *Tracker) edit(ctx context.Context, text string) {
	err := t.transport.EditMessageText(ctx, t.chatID, t.messageID, text)
	switch {
	case err == nil, errors.Is(err, telegram.ErrNotModified):
	case errors.Is(err, telegram.ErrMessageGone):
		t.dead.Store(true)
	default:
		slog.Debug("Progress edit failed", "error", err)
	}
}
