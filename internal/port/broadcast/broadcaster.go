// Package broadcast defines the real-time fan-out port.
package broadcast

import "context"

// Broadcaster pushes typed events to connected inbox clients.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Nop is a Broadcaster that discards all events.
type Nop struct{}

func (Nop) BroadcastEvent(context.Context, string, any) {}
