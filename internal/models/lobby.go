// internal/models/lobby.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// LobbyStatus is the lifecycle state of a lobby.
type LobbyStatus string

const (
	LobbyWaiting  LobbyStatus = "waiting"
	LobbyPlaying  LobbyStatus = "playing"
	LobbyFinished LobbyStatus = "finished"
)

// Lobby is a pre-match grouping of players, joinable by a 4-digit code that
// is unique among active lobbies. Players is ordered by JoinedAt ascending;
// that order is the canonical tie-break for host failover and turn rotation.
type Lobby struct {
	ID         uuid.UUID     `json:"id"`
	Code       string        `json:"code"`
	ServerID   string        `json:"server_id"`
	HostID     uuid.UUID     `json:"host_id"`
	Status     LobbyStatus   `json:"status"`
	MaxPlayers int           `json:"max_players"`
	Players    []LobbyPlayer `json:"players"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// LobbyPlayer is one seat in a lobby.
type LobbyPlayer struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Ready    bool      `json:"ready"`
	IsHost   bool      `json:"is_host"`
	JoinedAt time.Time `json:"joined_at"`
}

// Player returns the member with the given user id, or nil.
func (l *Lobby) Player(userID uuid.UUID) *LobbyPlayer {
	for i := range l.Players {
		if l.Players[i].UserID == userID {
			return &l.Players[i]
		}
	}
	return nil
}

// HasPlayer reports membership.
func (l *Lobby) HasPlayer(userID uuid.UUID) bool {
	return l.Player(userID) != nil
}

// AllReady reports whether every seated player has readied up.
func (l *Lobby) AllReady() bool {
	for i := range l.Players {
		if !l.Players[i].Ready {
			return false
		}
	}
	return len(l.Players) > 0
}
