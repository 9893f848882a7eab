package bus

import (
	"context"
	"log"
	"sync"
)

// Backpressure policies for a full inbound queue.
const (
	PolicyBlock      = "block"
	PolicyDropOldest = "drop-oldest"
)

// MessageBus routes messages between channel adapters and the agent loop.
// Inbound carries user messages toward the agent; Outbound carries replies
// back, dispatched to per-channel subscribers.
type MessageBus struct {
	Inbound  chan InboundMessage
	Outbound chan OutboundMessage

	policy string

	mu          sync.RWMutex
	subscribers map[string]func(OutboundMessage)
}

func NewMessageBus(bufSize int) *MessageBus {
	return NewMessageBusWithPolicy(bufSize, PolicyBlock)
}

func NewMessageBusWithPolicy(bufSize int, policy string) *MessageBus {
	if bufSize <= 0 {
		bufSize = 1
	}
	if policy != PolicyDropOldest {
		policy = PolicyBlock
	}
	return &MessageBus{
		Inbound:     make(chan InboundMessage, bufSize),
		Outbound:    make(chan OutboundMessage, bufSize),
		policy:      policy,
		subscribers: make(map[string]func(OutboundMessage)),
	}
}

// PublishInbound enqueues a message for the agent loop. Under the
// drop-oldest policy a full queue sheds its oldest message instead of
// blocking the producing channel adapter.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	if b.policy == PolicyBlock {
		b.Inbound <- msg
		return
	}
	for {
		select {
		case b.Inbound <- msg:
			return
		default:
			select {
			case dropped := <-b.Inbound:
				log.Printf("[bus] inbound queue full, dropping message from %s/%s", dropped.Channel, dropped.SenderID)
			default:
			}
		}
	}
}

// PublishOutbound enqueues a reply for dispatch to its channel.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.Outbound <- msg
}

// SubscribeOutbound registers a handler for outbound messages addressed to
// the named channel. One subscriber per channel; a later registration
// replaces the earlier one.
func (b *MessageBus) SubscribeOutbound(channel string, handler func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = handler
}

// DispatchOutbound pumps the outbound queue to subscribers until ctx ends.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.Outbound:
			b.mu.RLock()
			handler := b.subscribers[msg.Channel]
			b.mu.RUnlock()
			if handler == nil {
				log.Printf("[bus] no subscriber for channel %q, dropping outbound", msg.Channel)
				continue
			}
			handler(msg)
		case <-ctx.Done():
			return
		}
	}
}
