package bus

import (
	"context"
	"testing"
	"time"
)

func TestInboundRoundTrip(t *testing.T) {
	b := NewMessageBus()
	b.PublishInbound(&InboundMessage{ChatID: 7, ThreadID: "7:12", Text: "hello"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := b.ConsumeInbound(ctx)
	if err != nil {
		t.Fatalf("ConsumeInbound: %v", err)
	}
	if msg.ThreadID != "7:12" || msg.Text != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Fatal("timestamp not stamped on publish")
	}
}

func TestConsumeInboundHonorsCancellation(t *testing.T) {
	b := NewMessageBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.ConsumeInbound(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestDispatchOutboundFansOut(t *testing.T) {
	b := NewMessageBus()
	got := make(chan *OutboundMessage, 1)
	b.Subscribe(func(m *OutboundMessage) { got <- m })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.DispatchOutbound(ctx) }()

	b.PublishOutbound(&OutboundMessage{ChatID: 7, Text: "reply"})
	select {
	case m := <-got:
		if m.Text != "reply" {
			t.Fatalf("unexpected outbound: %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("outbound message never dispatched")
	}
}
