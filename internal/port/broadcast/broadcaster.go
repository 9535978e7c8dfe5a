// Package broadcast defines the port for pushing real-time task events to connected clients.
package broadcast

import "context"

// Broadcaster sends real-time task status and progress events to all
// connected clients. Implementations must not block the caller.
type Broadcaster interface {
	// BroadcastEvent sends a typed event to all connected clients.
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
