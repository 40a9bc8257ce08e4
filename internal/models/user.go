// internal/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a row in the users table. Identity originates from the
// chat platform's OAuth exchange; ExternalID is the platform user id.
type User struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserStats is the aggregate kept per user, mutated only by match
// finalization (see match.Engine.RecordResults).
type UserStats struct {
	UserID        uuid.UUID `json:"user_id"`
	TotalMatches  int       `json:"total_matches"`
	TotalWins     int       `json:"total_wins"`
	TotalScore    int       `json:"total_score"`
	TotalWords    int       `json:"total_words"`
	BestScore     int       `json:"best_score"`
	CurrentStreak int       `json:"current_streak"`
	BestStreak    int       `json:"best_streak"`
}

// MatchOutcome is one player's slice of a finished match, applied to their
// stats aggregate inside the finalization transaction.
type MatchOutcome struct {
	Won        bool
	Score      int
	WordsFound int
}
