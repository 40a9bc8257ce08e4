// internal/store/store.go
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wordhex/wordhex/internal/models"
)

// Store is the transactional repository consumed by the lobby manager,
// matchmaking queue and match engine. WithTx is the unit-of-work primitive:
// everything done through the Tx applies atomically, or not at all if fn
// returns an error. Conflicting mutations of the same row are serialized by
// the implementation, so a read-modify-write inside one WithTx call never
// observes a half-applied concurrent mutation.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the per-aggregate repositories bound to one transaction.
type Tx interface {
	Users() UserRepo
	Lobbies() LobbyRepo
	Matches() MatchRepo
	Queue() QueueRepo
	Sessions() SessionRepo
	Records() RecordRepo
}

// UserRepo covers users and their stats aggregates.
type UserRepo interface {
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.User, error)
	Upsert(ctx context.Context, u *models.User) error
	Stats(ctx context.Context, id uuid.UUID) (*models.UserStats, error)
	// ApplyMatchOutcome increments the stats aggregate in place: totals,
	// best-score high-water mark, and the win-streak counter.
	ApplyMatchOutcome(ctx context.Context, id uuid.UUID, o models.MatchOutcome) error
}

// LobbyRepo covers lobbies and their seats. Get and GetByCode return the
// lobby with Players ordered by JoinedAt ascending.
type LobbyRepo interface {
	Insert(ctx context.Context, l *models.Lobby) error
	Get(ctx context.Context, id uuid.UUID) (*models.Lobby, error)
	GetByCode(ctx context.Context, serverID, code string) (*models.Lobby, error)
	// CodeInUse reports whether an unfinished lobby already claims code.
	CodeInUse(ctx context.Context, code string) (bool, error)
	Update(ctx context.Context, l *models.Lobby) error
	Delete(ctx context.Context, id uuid.UUID) error
	AddPlayer(ctx context.Context, lobbyID uuid.UUID, p models.LobbyPlayer) error
	UpdatePlayer(ctx context.Context, lobbyID uuid.UUID, p models.LobbyPlayer) error
	RemovePlayer(ctx context.Context, lobbyID, userID uuid.UUID) error
	ListByMember(ctx context.Context, userID uuid.UUID) ([]models.Lobby, error)
	// ListIdleWaiting returns waiting lobbies not updated since cutoff,
	// players included, for the inactivity sweep.
	ListIdleWaiting(ctx context.Context, cutoff time.Time) ([]models.Lobby, error)
}

// MatchRepo covers matches and their participants. Get returns Players
// ordered by TurnOrder ascending.
type MatchRepo interface {
	Insert(ctx context.Context, m *models.Match) error
	Get(ctx context.Context, id uuid.UUID) (*models.Match, error)
	// GetByLobby returns the in-progress match for a lobby, if any.
	GetByLobby(ctx context.Context, lobbyID uuid.UUID) (*models.Match, error)
	Update(ctx context.Context, m *models.Match) error
	Delete(ctx context.Context, id uuid.UUID) error
	UpsertPlayer(ctx context.Context, matchID uuid.UUID, p models.MatchPlayer) error
	RemovePlayer(ctx context.Context, matchID, userID uuid.UUID) error
	ReplacePlayers(ctx context.Context, matchID uuid.UUID, players []models.MatchPlayer) error
}

// QueueRepo covers the matchmaking queue.
type QueueRepo interface {
	Upsert(ctx context.Context, e models.MatchmakingEntry) error
	Get(ctx context.Context, userID uuid.UUID) (*models.MatchmakingEntry, error)
	Delete(ctx context.Context, userID uuid.UUID) error
	// ListByServer returns the server's queue ordered by JoinedAt ascending.
	ListByServer(ctx context.Context, serverID string) ([]models.MatchmakingEntry, error)
}

// SessionRepo covers play sessions.
type SessionRepo interface {
	Upsert(ctx context.Context, s *models.Session) error
	GetActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Session, error)
	// Touch refreshes LastSeenAt on the user's active sessions so the stale
	// sweep leaves them alone.
	Touch(ctx context.Context, userID uuid.UUID, at time.Time) error
	// CompleteByUser completes the user's active sessions and returns them.
	CompleteByUser(ctx context.Context, userID uuid.UUID, at time.Time) ([]models.Session, error)
	Complete(ctx context.Context, id uuid.UUID, at time.Time) error
	ListStale(ctx context.Context, cutoff time.Time) ([]models.Session, error)
}

// RecordRepo covers per-server high-score records.
type RecordRepo interface {
	Get(ctx context.Context, serverID string) (*models.ServerRecord, error)
	Upsert(ctx context.Context, r *models.ServerRecord) error
}
