// Package bot wires the Telegram transport to the conversation coordinator:
// long-polling, idempotent update handling, command routing and reply
// delivery.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keeperbot/keeper/internal/bus"
	"github.com/keeperbot/keeper/internal/config"
	"github.com/keeperbot/keeper/internal/coordinator"
	"github.com/keeperbot/keeper/internal/session"
	"github.com/keeperbot/keeper/internal/telegram"
	"github.com/keeperbot/keeper/internal/updater"
)

const typingInterval = 4 * time.Second

// Bot runs the message loop.
type Bot struct {
	cfg    *config.Config
	client *telegram.Client
	bus    *bus.MessageBus
	coord  *coordinator.Coordinator
	upd    *updater.Updater
	store  *session.Store
}

// New creates a bot.
func New(cfg *config.Config, client *telegram.Client, mbus *bus.MessageBus, coord *coordinator.Coordinator, upd *updater.Updater, store *session.Store) *Bot {
	return &Bot{cfg: cfg, client: client, bus: mbus, coord: coord, upd: upd, store: store}
}

// Run blocks until ctx ends, polling for updates and processing them.
func (b *Bot) Run(ctx context.Context) error {
	b.bus.Subscribe(func(msg *bus.OutboundMessage) {
		b.deliver(ctx, msg)
	})
	go func() { _ = b.bus.DispatchOutbound(ctx) }()
	go b.poll(ctx)

	for {
		msg, err := b.bus.ConsumeInbound(ctx)
		if err != nil {
			return err
		}
		go b.handle(ctx, msg)
	}
}

func (b *Bot) poll(ctx context.Context) {
	offset := int64(0)
	for ctx.Err() == nil {
		updates, err := b.client.GetUpdates(ctx, offset, time.Duration(b.cfg.Telegram.PollTimeoutSec)*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("getUpdates failed", "error", err)
			time.Sleep(3 * time.Second)
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			m := u.Message
			inbound := &bus.InboundMessage{
				UpdateID:  u.UpdateID,
				ChatID:    m.Chat.ID,
				ThreadID:  threadID(m.Chat.ID, m.MessageThreadID),
				SenderID:  m.From.ID,
				MessageID: m.MessageID,
				Text:      m.Text,
				TraceID:   uuid.NewString(),
			}
			if m.ReplyToMessage != nil {
				inbound.ReplyToID = m.ReplyToMessage.MessageID
			}
			b.bus.PublishInbound(inbound)
		}
	}
}

func (b *Bot) handle(ctx context.Context, msg *bus.InboundMessage) {
	log := slog.With("thread", msg.ThreadID, "trace", msg.TraceID)

	isNew, err := b.store.MarkSeen(msg.UpdateID)
	if err != nil {
		log.Warn("Seen-update check failed", "error", err)
	} else if !isNew {
		log.Debug("Duplicate update suppressed", "update", msg.UpdateID)
		return
	}
	if !allowed(b.cfg.Telegram.AllowedUserIDs, msg.SenderID) {
		log.Debug("Sender not allowlisted", "sender", msg.SenderID)
		return
	}
	profile := b.cfg.Profile(msg.ChatID)
	if profile == nil {
		log.Debug("No profile for chat, dropping", "chat", msg.ChatID)
		return
	}

	if cmd, ok := parseCommand(msg.Text); ok {
		b.runCommand(ctx, cmd, msg)
		return
	}

	// A reply to an updater status message resumes that updater session
	// instead of starting a turn.
	if msg.ReplyToID != 0 && b.upd != nil {
		answer, handled, err := b.upd.HandleReply(ctx, msg.ReplyToID, msg.Text)
		if handled {
			if err != nil {
				log.Warn("Updater reply failed", "error", err)
				answer = "⚠️ could not process that follow-up"
			}
			b.send(msg, answer)
			return
		}
	}

	stopTyping := b.startTyping(ctx, msg)
	defer stopTyping()

	res := b.coord.RunTurn(ctx, coordinator.Turn{
		ThreadID:        msg.ThreadID,
		ChatID:          msg.ChatID,
		TopicID:         topicID(msg.ThreadID),
		MessageID:       msg.MessageID,
		TraceID:         msg.TraceID,
		Text:            msg.Text,
		SystemPrompt:    profile.SystemPrompt,
		DisallowedTools: profile.DisallowedTools,
		EnableRetrieval: profile.EnableRetrieval,
		EnableKBUpdate:  profile.EnableKBUpdate,
	})
	switch res.Kind {
	case coordinator.KindCompleted:
		text := res.Response
		if len(res.Denials) > 0 {
			text += "\n\n🚫 denied tools: " + strings.Join(res.Denials, ", ")
		}
		b.send(msg, text)
	case coordinator.KindFailed:
		log.Error("Turn failed", "error", res.Err)
		b.send(msg, "⚠️ something went wrong, try again")
	case coordinator.KindSuperseded, coordinator.KindCancelled:
		log.Info("Turn dropped", "kind", res.Kind.String())
	}
}

func (b *Bot) runCommand(ctx context.Context, cmd string, msg *bus.InboundMessage) {
	switch cmd {
	case "reset":
		deleted, err := b.store.Delete(msg.ThreadID)
		if err != nil {
			slog.Warn("Reset failed", "thread", msg.ThreadID, "error", err)
			b.send(msg, "⚠️ reset failed")
			return
		}
		if deleted {
			b.send(msg, "🔄 session reset")
		} else {
			b.send(msg, "nothing to reset")
		}
	case "cost":
		cost, err := b.store.Cost(msg.ThreadID)
		if err != nil {
			slog.Warn("Cost lookup failed", "thread", msg.ThreadID, "error", err)
			b.send(msg, "⚠️ cost unavailable")
			return
		}
		b.send(msg, fmt.Sprintf("💸 $%.4f this session", cost))
	case "stop":
		if b.coord.Stop(msg.ThreadID) {
			b.send(msg, "🛑 stopped")
		} else {
			b.send(msg, "nothing to stop")
		}
	default:
		b.send(msg, "unknown command: /"+cmd)
	}
}

// startTyping shows the typing indicator until the returned func is called.
func (b *Bot) startTyping(ctx context.Context, msg *bus.InboundMessage) func() {
	tctx, cancel := context.WithCancel(ctx)
	go func() {
		t := time.NewTicker(typingInterval)
		defer t.Stop()
		for {
			if err := b.client.SendChatAction(tctx, msg.ChatID, topicID(msg.ThreadID), "typing"); err != nil && tctx.Err() != nil {
				return
			}
			select {
			case <-tctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	return cancel
}

func (b *Bot) send(msg *bus.InboundMessage, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	b.bus.PublishOutbound(&bus.OutboundMessage{
		ChatID:    msg.ChatID,
		ThreadID:  msg.ThreadID,
		ReplyToID: msg.MessageID,
		TraceID:   msg.TraceID,
		Text:      text,
	})
}

// deliver sends one outbound message, split to the transport cap.
func (b *Bot) deliver(ctx context.Context, msg *bus.OutboundMessage) {
	opts := telegram.SendOptions{ThreadID: topicID(msg.ThreadID), ReplyToID: msg.ReplyToID}
	for i, part := range telegram.SplitMessage(msg.Text) {
		if i > 0 {
			// Only the first part replies to the user's message.
			opts.ReplyToID = 0
		}
		if _, err := b.client.SendMessage(ctx, msg.ChatID, part, opts); err != nil {
			slog.Warn("Send failed", "chat", msg.ChatID, "trace", msg.TraceID, "error", err)
			return
		}
	}
}
