package bus

import (
	"context"
	"testing"
	"time"
)

func TestSessionKey(t *testing.T) {
	msg := InboundMessage{Channel: "telegram", ChatID: "12345"}
	if got := msg.SessionKey(); got != "telegram:12345" {
		t.Errorf("SessionKey() = %q, want %q", got, "telegram:12345")
	}
}

func TestDispatchOutbound(t *testing.T) {
	b := NewMessageBus(4)

	got := make(chan OutboundMessage, 1)
	b.SubscribeOutbound("cli", func(m OutboundMessage) {
		got <- m
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "cli", ChatID: "local", Content: "hello"}

	select {
	case m := <-got:
		if m.Content != "hello" {
			t.Errorf("handler got content %q, want %q", m.Content, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestDispatchOutboundUnknownChannel(t *testing.T) {
	b := NewMessageBus(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	// No subscriber registered; must not block or panic.
	b.Outbound <- OutboundMessage{Channel: "nobody", Content: "lost"}
	time.Sleep(50 * time.Millisecond)
}

func TestPublishInboundDropOldest(t *testing.T) {
	b := NewMessageBusWithPolicy(2, PolicyDropOldest)

	b.PublishInbound(InboundMessage{Content: "first"})
	b.PublishInbound(InboundMessage{Content: "second"})
	// Queue full; this must not block and must evict "first".
	done := make(chan struct{})
	go func() {
		b.PublishInbound(InboundMessage{Content: "third"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PublishInbound blocked under drop-oldest policy")
	}

	m := <-b.Inbound
	if m.Content != "second" {
		t.Errorf("head of queue = %q, want %q", m.Content, "second")
	}
}

func TestSubscribeReplacesHandler(t *testing.T) {
	b := NewMessageBus(1)

	var first, second bool
	b.SubscribeOutbound("cli", func(OutboundMessage) { first = true })
	b.SubscribeOutbound("cli", func(OutboundMessage) { second = true })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.Outbound <- OutboundMessage{Channel: "cli"}
	time.Sleep(50 * time.Millisecond)

	if first {
		t.Error("replaced handler was invoked")
	}
	if !second {
		t.Error("current handler was not invoked")
	}
}
