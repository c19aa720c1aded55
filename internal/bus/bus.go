// Package bus provides the async message bus between the chat transport and
// the conversation coordinator.
package bus

import (
	"context"
	"sync"
	"time"
)

// InboundMessage is a user message handed from the transport to the core.
type InboundMessage struct {
	UpdateID  int64     `json:"update_id"`
	ChatID    int64     `json:"chat_id"`
	ThreadID  string    `json:"thread_id"`
	SenderID  int64     `json:"sender_id"`
	MessageID int64     `json:"message_id"`
	ReplyToID int64     `json:"reply_to_id,omitempty"`
	TraceID   string    `json:"trace_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// OutboundMessage is a reply from the core to the transport.
type OutboundMessage struct {
	ChatID    int64  `json:"chat_id"`
	ThreadID  string `json:"thread_id"`
	ReplyToID int64  `json:"reply_to_id,omitempty"`
	TraceID   string `json:"trace_id"`
	Text      string `json:"text"`
}

// MessageBus decouples the transport loop from the coordinator.
type MessageBus struct {
	inbound  chan *InboundMessage
	outbound chan *OutboundMessage
	subs     []func(*OutboundMessage)
	mu       sync.RWMutex
}

// NewMessageBus creates a new message bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan *InboundMessage, 100),
		outbound: make(chan *OutboundMessage, 100),
	}
}

// PublishInbound hands a user message to the core.
func (b *MessageBus) PublishInbound(msg *InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	b.inbound <- msg
}

// ConsumeInbound blocks until a message is available or context is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (*InboundMessage, error) {
	select {
	case msg := <-b.inbound:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PublishOutbound queues a reply for delivery.
func (b *MessageBus) PublishOutbound(msg *OutboundMessage) {
	b.outbound <- msg
}

// Subscribe registers a callback for outbound messages.
func (b *MessageBus) Subscribe(callback func(*OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, callback)
}

// DispatchOutbound runs the outbound message dispatcher.
// This should be run as a goroutine.
func (b *MessageBus) DispatchOutbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-b.outbound:
			b.mu.RLock()
			callbacks := append([]func(*OutboundMessage){}, b.subs...)
			b.mu.RUnlock()

			for _, cb := range callbacks {
				cb(msg)
			}
		}
	}
}
