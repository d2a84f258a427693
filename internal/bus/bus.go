// Package bus replicates room-scoped broadcasts across horizontally-scaled
// process instances. The chat service publishes every outgoing room event to
// the bus and replays events originated by peer instances to its own locally
// connected sockets; it never depends on the transport behind the interface.
package bus

import (
	"context"
	"encoding/json"
)

// Event is one room-scoped broadcast crossing instance boundaries. Source is
// the publishing instance's node ID so subscribers can ignore their own
// events.
type Event struct {
	Source  string          `json:"source"`
	Kind    string          `json:"kind"`
	RoomID  uint            `json:"room_id"`
	Payload json.RawMessage `json:"payload"`
}

// Handler consumes events originated by peer instances.
type Handler func(Event)

// Bus is the fan-out transport between process instances.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe registers handler for peer events. It returns once the
	// subscription is established; delivery happens on background goroutines
	// until ctx is cancelled.
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}
