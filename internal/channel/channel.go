// Package channel contains the chat surface adapters that feed the
// message bus: inbound user messages in, agent replies out.
package channel

import (
	"context"

	"github.com/stellarlinkco/sparkclaw/internal/bus"
)

// Channel is a chat surface adapter. Start begins receiving inbound
// messages and publishing them to the bus; Send delivers one outbound
// reply.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(msg bus.OutboundMessage) error
}

// BaseChannel carries the shared identity, bus handle, and sender
// allow-list for concrete channels.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom map[string]struct{}
}

// NewBaseChannel creates the shared channel base. An empty allowFrom
// list admits every sender.
func NewBaseChannel(name string, b *bus.MessageBus, allowFrom []string) BaseChannel {
	var allowed map[string]struct{}
	if len(allowFrom) > 0 {
		allowed = make(map[string]struct{}, len(allowFrom))
		for _, id := range allowFrom {
			allowed[id] = struct{}{}
		}
	}
	return BaseChannel{name: name, bus: b, allowFrom: allowed}
}

func (c *BaseChannel) Name() string { return c.name }

// IsAllowed reports whether a sender passes the allow-list.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if c.allowFrom == nil {
		return true
	}
	_, ok := c.allowFrom[senderID]
	return ok
}
