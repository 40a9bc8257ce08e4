// internal/events/bus.go
package events

import (
	"sync"

	"github.com/google/uuid"
)

// Event names published by the lobby manager, matchmaking queue, match
// engine and session service.
const (
	LobbyUpdated        = "lobby:updated"
	LobbyDeleted        = "lobby:deleted"
	MatchmakingUpdated  = "matchmaking:updated"
	MatchStarted        = "match:started"
	MatchUpdated        = "match:updated"
	MatchCompleted      = "match:completed"
	SessionUpdated      = "session:updated"
	ServerRecordUpdated = "server-record:updated"
	StatsUpdated        = "stats:updated"
)

// Event is one domain event. The id fields route the event to broadcast
// channels; Payload is merged into the outbound envelope.
type Event struct {
	Type     string
	ServerID string
	LobbyID  uuid.UUID
	MatchID  uuid.UUID
	UserID   uuid.UUID
	Payload  map[string]interface{}
}

// Handler consumes a published event. Handlers must not block: delivery to
// slow consumers is the handler's problem (the broadcaster drops instead).
type Handler func(Event)

// Bus is a process-wide publish/subscribe fan-out, injected into the
// components that publish on it so they can be tested without a live
// broadcaster.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func New() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for every subsequent publish.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers ev to every handler. The handler slice is snapshotted
// under the read lock so subscribes racing a publish never corrupt
// iteration.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	hs := make([]Handler, len(b.handlers))
	copy(hs, b.handlers)
	b.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}
