// internal/models/session.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a play session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// Session tracks one user's activity window on a server. Refreshed on
// identify and on match progress; completed on leave or by the stale sweep.
type Session struct {
	ID         uuid.UUID     `json:"id"`
	UserID     uuid.UUID     `json:"user_id"`
	Username   string        `json:"username"`
	ServerID   string        `json:"server_id"`
	MatchID    *uuid.UUID    `json:"match_id,omitempty"`
	Status     SessionStatus `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	LastSeenAt time.Time     `json:"last_seen_at"`
}

// ServerRecord is the per-server single-match high score.
type ServerRecord struct {
	ServerID   string    `json:"server_id"`
	UserID     uuid.UUID `json:"user_id"`
	Username   string    `json:"username"`
	Score      int       `json:"score"`
	AchievedAt time.Time `json:"achieved_at"`
}
