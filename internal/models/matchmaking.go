// internal/models/matchmaking.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchmakingEntry is one waiting player in a server's FIFO queue. A user
// has at most one entry; re-joining replaces it and resets JoinedAt.
type MatchmakingEntry struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	ServerID string    `json:"server_id"`
	JoinedAt time.Time `json:"joined_at"`
}
