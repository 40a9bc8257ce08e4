// internal/ws/broadcaster_test.go
package ws

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordhex/wordhex/internal/events"
)

func TestChannelsFor(t *testing.T) {
	lobbyID := uuid.New()
	matchID := uuid.New()
	userID := uuid.New()

	tests := []struct {
		name string
		ev   events.Event
		want []string
	}{
		{
			name: "lobby update fans out to lobby and server list",
			ev:   events.Event{Type: events.LobbyUpdated, ServerID: "alpha", LobbyID: lobbyID},
			want: []string{LobbyChannel(lobbyID), ServerLobbiesChannel("alpha")},
		},
		{
			name: "lobby delete mirrors lobby update",
			ev:   events.Event{Type: events.LobbyDeleted, ServerID: "alpha", LobbyID: lobbyID},
			want: []string{LobbyChannel(lobbyID), ServerLobbiesChannel("alpha")},
		},
		{
			name: "matchmaking snapshot is per server",
			ev:   events.Event{Type: events.MatchmakingUpdated, ServerID: "alpha"},
			want: []string{MatchmakingChannel("alpha")},
		},
		{
			name: "match start reaches the lobby and the match room",
			ev:   events.Event{Type: events.MatchStarted, ServerID: "alpha", LobbyID: lobbyID, MatchID: matchID},
			want: []string{LobbyChannel(lobbyID), MatchChannel(matchID)},
		},
		{
			name: "match update stays in the match room",
			ev:   events.Event{Type: events.MatchUpdated, MatchID: matchID},
			want: []string{MatchChannel(matchID)},
		},
		{
			name: "match completion with lobby",
			ev:   events.Event{Type: events.MatchCompleted, ServerID: "alpha", LobbyID: lobbyID, MatchID: matchID},
			want: []string{MatchChannel(matchID), LobbyChannel(lobbyID), ServerLobbiesChannel("alpha")},
		},
		{
			name: "match completion without lobby skips the lobby channel",
			ev:   events.Event{Type: events.MatchCompleted, ServerID: "alpha", MatchID: matchID},
			want: []string{MatchChannel(matchID), ServerLobbiesChannel("alpha")},
		},
		{
			name: "session update",
			ev:   events.Event{Type: events.SessionUpdated, ServerID: "alpha", UserID: userID},
			want: []string{SessionsChannel("alpha")},
		},
		{
			name: "server record update",
			ev:   events.Event{Type: events.ServerRecordUpdated, ServerID: "alpha"},
			want: []string{ServerRecordChannel("alpha")},
		},
		{
			name: "stats update is per user",
			ev:   events.Event{Type: events.StatsUpdated, UserID: userID},
			want: []string{StatsChannel(userID)},
		},
		{
			name: "unknown event goes nowhere",
			ev:   events.Event{Type: "mystery"},
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, channelsFor(tc.ev))
		})
	}
}

func TestBroadcasterEnvelope(t *testing.T) {
	reg := NewRegistry(0, testLogger())
	bus := events.New()
	NewBroadcaster(reg, testLogger()).Attach(bus)

	matchID := uuid.New()
	c := reg.Register(func() {})
	reg.Subscribe(c, MatchChannel(matchID))

	bus.Publish(events.Event{
		Type:    events.MatchUpdated,
		MatchID: matchID,
		Payload: map[string]interface{}{"round": 3},
	})

	select {
	case data := <-c.out:
		var env map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, events.MatchUpdated, env["type"])
		assert.Equal(t, MatchChannel(matchID), env["channel"])
		assert.Equal(t, float64(3), env["round"])
	default:
		t.Fatal("subscriber received nothing")
	}
}
