// internal/matchmaking/queue.go
package matchmaking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wordhex/wordhex/internal/apperr"
	"github.com/wordhex/wordhex/internal/events"
	"github.com/wordhex/wordhex/internal/lobby"
	"github.com/wordhex/wordhex/internal/models"
	"github.com/wordhex/wordhex/internal/store"
)

// Result statuses returned by Join.
const (
	StatusMatched = "matched"
	StatusQueued  = "queued"
)

// Result reports the outcome of a join: either a fresh lobby with both
// paired players seated, or the caller's place in the queue.
type Result struct {
	Status         string        `json:"status"`
	Lobby          *models.Lobby `json:"lobby,omitempty"`
	QueuePosition  int           `json:"queue_position,omitempty"`
	PlayersInQueue int           `json:"players_in_queue,omitempty"`
}

// Queue pairs waiting players strictly first-in-first-out per server.
// Anything beyond arrival order (skill, region) is deliberately out of
// scope.
type Queue struct {
	store   store.Store
	bus     *events.Bus
	lobbies *lobby.Manager
	log     *logrus.Logger
}

func NewQueue(st store.Store, bus *events.Bus, lobbies *lobby.Manager, log *logrus.Logger) *Queue {
	return &Queue{store: st, bus: bus, lobbies: lobbies, log: log}
}

// Join upserts the caller's queue entry (re-joining replaces it and resets
// its timestamp) and runs the pairing check in the same transaction, so two
// concurrent joins can never both observe "two waiting" and double-pair the
// same entries. Every call publishes a queue snapshot so all viewers stay
// consistent.
func (q *Queue) Join(ctx context.Context, userID uuid.UUID, username, serverID string) (*Result, error) {
	var (
		res      Result
		snapshot []models.MatchmakingEntry
		newLobby *models.Lobby
	)
	err := q.store.WithTx(ctx, func(tx store.Tx) error {
		res = Result{}
		newLobby = nil

		entry := models.MatchmakingEntry{
			UserID:   userID,
			Username: username,
			ServerID: serverID,
			JoinedAt: time.Now().UTC(),
		}
		if err := tx.Queue().Upsert(ctx, entry); err != nil {
			return err
		}

		waiting, err := tx.Queue().ListByServer(ctx, serverID)
		if err != nil {
			return err
		}

		if len(waiting) >= 2 {
			host, guest := waiting[0], waiting[1]
			if err := tx.Queue().Delete(ctx, host.UserID); err != nil {
				return err
			}
			if err := tx.Queue().Delete(ctx, guest.UserID); err != nil {
				return err
			}

			l, err := q.lobbies.CreateLobbyTx(ctx, tx, host.UserID, host.Username, serverID, lobby.DefaultMaxPlayers)
			if err != nil {
				return err
			}
			if err := q.lobbies.JoinTx(ctx, tx, l, guest.UserID, guest.Username); err != nil {
				return err
			}

			newLobby = l
			res = Result{Status: StatusMatched, Lobby: l}
			snapshot = waiting[2:]
			return nil
		}

		pos := 0
		for i, e := range waiting {
			if e.UserID == userID {
				pos = i + 1
				break
			}
		}
		res = Result{
			Status:         StatusQueued,
			QueuePosition:  pos,
			PlayersInQueue: len(waiting),
		}
		snapshot = waiting
		return nil
	})
	if err != nil {
		return nil, err
	}

	if newLobby != nil {
		q.bus.Publish(events.Event{
			Type:     events.LobbyUpdated,
			ServerID: serverID,
			LobbyID:  newLobby.ID,
			Payload:  map[string]interface{}{"lobby": newLobby},
		})
	}
	q.publishSnapshot(serverID, snapshot)
	return &res, nil
}

// Leave removes the caller's queue entry if present; resending is a no-op.
func (q *Queue) Leave(ctx context.Context, userID uuid.UUID) error {
	var (
		serverID string
		snapshot []models.MatchmakingEntry
		removed  bool
	)
	err := q.store.WithTx(ctx, func(tx store.Tx) error {
		removed = false
		entry, err := tx.Queue().Get(ctx, userID)
		if apperr.Is(err, apperr.CodeNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Queue().Delete(ctx, userID); err != nil {
			return err
		}
		serverID = entry.ServerID
		snapshot, err = tx.Queue().ListByServer(ctx, serverID)
		if err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return err
	}
	if removed {
		q.publishSnapshot(serverID, snapshot)
	}
	return nil
}

func (q *Queue) publishSnapshot(serverID string, waiting []models.MatchmakingEntry) {
	if waiting == nil {
		waiting = []models.MatchmakingEntry{}
	}
	q.bus.Publish(events.Event{
		Type:     events.MatchmakingUpdated,
		ServerID: serverID,
		Payload: map[string]interface{}{
			"players_in_queue": len(waiting),
			"queue":            waiting,
		},
	})
}
