// internal/ws/broadcaster.go
package ws

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wordhex/wordhex/internal/events"
)

// Broadcaster turns domain events into outbound channel messages. It is
// the only bus subscriber that touches sockets; publishers never block on
// delivery.
type Broadcaster struct {
	reg *Registry
	log *logrus.Logger
}

func NewBroadcaster(reg *Registry, log *logrus.Logger) *Broadcaster {
	return &Broadcaster{reg: reg, log: log}
}

// Attach subscribes the broadcaster to the bus.
func (b *Broadcaster) Attach(bus *events.Bus) {
	bus.Subscribe(b.handle)
}

func (b *Broadcaster) handle(ev events.Event) {
	for _, channel := range channelsFor(ev) {
		envelope := make(map[string]interface{}, len(ev.Payload)+2)
		for k, v := range ev.Payload {
			envelope[k] = v
		}
		envelope["channel"] = channel
		envelope["type"] = ev.Type

		data, err := json.Marshal(envelope)
		if err != nil {
			b.log.Errorf("failed to marshal %s event for channel %s: %v", ev.Type, channel, err)
			continue
		}
		b.reg.Broadcast(channel, data)
	}
}

// channelsFor maps an event to the broadcast channels it fans out on.
func channelsFor(ev events.Event) []string {
	switch ev.Type {
	case events.LobbyUpdated, events.LobbyDeleted:
		return []string{
			LobbyChannel(ev.LobbyID),
			ServerLobbiesChannel(ev.ServerID),
		}
	case events.MatchmakingUpdated:
		return []string{MatchmakingChannel(ev.ServerID)}
	case events.MatchStarted:
		return []string{
			LobbyChannel(ev.LobbyID),
			MatchChannel(ev.MatchID),
		}
	case events.MatchUpdated:
		return []string{MatchChannel(ev.MatchID)}
	case events.MatchCompleted:
		channels := []string{MatchChannel(ev.MatchID)}
		if ev.LobbyID != uuid.Nil {
			channels = append(channels, LobbyChannel(ev.LobbyID))
		}
		return append(channels, ServerLobbiesChannel(ev.ServerID))
	case events.SessionUpdated:
		return []string{SessionsChannel(ev.ServerID)}
	case events.ServerRecordUpdated:
		return []string{ServerRecordChannel(ev.ServerID)}
	case events.StatsUpdated:
		return []string{StatsChannel(ev.UserID)}
	}
	return nil
}

// Channel naming shared with clients.

func LobbyChannel(lobbyID uuid.UUID) string {
	return fmt.Sprintf("lobby:%s", lobbyID)
}

func ServerLobbiesChannel(serverID string) string {
	return fmt.Sprintf("server:%s:lobbies", serverID)
}

func MatchChannel(matchID uuid.UUID) string {
	return fmt.Sprintf("match:%s", matchID)
}

func MatchmakingChannel(serverID string) string {
	return fmt.Sprintf("matchmaking:%s", serverID)
}

func SessionsChannel(serverID string) string {
	return fmt.Sprintf("sessions:%s", serverID)
}

func ServerRecordChannel(serverID string) string {
	return fmt.Sprintf("server-record:%s", serverID)
}

func StatsChannel(userID uuid.UUID) string {
	return fmt.Sprintf("stats:%s", userID)
}
