// internal/models/match.go
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MatchStatus is the lifecycle state of a match. The only transition is
// in_progress -> completed; completed is terminal.
type MatchStatus string

const (
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
)

// TurnRecord describes the most recently completed turn.
type TurnRecord struct {
	PlayerID uuid.UUID `json:"player_id"`
	Username string    `json:"username"`
	Word     string    `json:"word,omitempty"`
	Score    int       `json:"score"`
	Round    int       `json:"round"`
}

// Match is one active or completed game instance. LobbyID is nullable: a
// match may outlive the lobby it was started from. Players is ordered by
// TurnOrder, the original join order snapshotted at match start.
type Match struct {
	ID              uuid.UUID       `json:"id"`
	LobbyID         *uuid.UUID      `json:"lobby_id,omitempty"`
	ServerID        string          `json:"server_id"`
	Status          MatchStatus     `json:"status"`
	GridData        json.RawMessage `json:"grid_data,omitempty"`
	WordsFound      int             `json:"words_found"`
	CurrentPlayerID *uuid.UUID      `json:"current_player_id,omitempty"`
	RoundNumber     int             `json:"round_number"`
	LastTurn        *TurnRecord     `json:"last_turn,omitempty"`
	Players         []MatchPlayer   `json:"players"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// MatchPlayer is one participant's score sheet. Rank is assigned only at
// completion, 1..N by descending score, ties keeping input order.
type MatchPlayer struct {
	UserID       uuid.UUID `json:"user_id"`
	Username     string    `json:"username"`
	Score        int       `json:"score"`
	WordsFound   int       `json:"words_found"`
	RoundsPlayed int       `json:"rounds_played"`
	Rank         *int      `json:"rank,omitempty"`
	TurnOrder    int       `json:"turn_order"`
}

// Player returns the participant with the given user id, or nil.
func (m *Match) Player(userID uuid.UUID) *MatchPlayer {
	for i := range m.Players {
		if m.Players[i].UserID == userID {
			return &m.Players[i]
		}
	}
	return nil
}

// TurnOrderIDs returns participant ids sorted by original turn order.
func (m *Match) TurnOrderIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(m.Players))
	for i := range m.Players {
		ids[i] = m.Players[i].UserID
	}
	return ids
}
