// internal/lobby/manager.go
package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wordhex/wordhex/internal/apperr"
	"github.com/wordhex/wordhex/internal/events"
	"github.com/wordhex/wordhex/internal/grid"
	"github.com/wordhex/wordhex/internal/match"
	"github.com/wordhex/wordhex/internal/models"
	"github.com/wordhex/wordhex/internal/store"
)

const (
	// DefaultMaxPlayers is the seat cap applied when a create request
	// doesn't specify one.
	DefaultMaxPlayers = 8

	// codeAttempts bounds unique-code generation; exhaustion fails with
	// Conflict instead of spinning against a saturated code space.
	codeAttempts = 25

	// GridRows and GridCols size the board generated at match start.
	GridRows = 7
	GridCols = 7

	// DefaultIdleTimeout is how long a waiting, at-most-one-player lobby
	// may sit unchanged before the sweep deletes it.
	DefaultIdleTimeout = 5 * time.Minute
)

// Manager owns the lobby lifecycle: create, join, ready, leave, kick, host
// failover, start, and the background inactivity sweep. Every operation is
// one transaction; domain events are published only after commit.
type Manager struct {
	store       store.Store
	bus         *events.Bus
	engine      *match.Engine
	grids       *grid.Generator
	log         *logrus.Logger
	idleTimeout time.Duration
}

func NewManager(st store.Store, bus *events.Bus, engine *match.Engine, grids *grid.Generator, log *logrus.Logger) *Manager {
	return &Manager{
		store:       st,
		bus:         bus,
		engine:      engine,
		grids:       grids,
		log:         log,
		idleTimeout: DefaultIdleTimeout,
	}
}

// SetIdleTimeout overrides the inactivity window used by the sweep.
func (m *Manager) SetIdleTimeout(d time.Duration) {
	m.idleTimeout = d
}

// CreateLobby opens a new waiting lobby with the host as its sole, ready
// player.
func (m *Manager) CreateLobby(ctx context.Context, hostID uuid.UUID, hostUsername, serverID string, maxPlayers int) (*models.Lobby, error) {
	var l *models.Lobby
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		l, err = m.CreateLobbyTx(ctx, tx, hostID, hostUsername, serverID, maxPlayers)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.publishLobbyUpdated(l)
	return l, nil
}

// CreateLobbyTx is the creation path inside an existing transaction; the
// matchmaking queue uses it so pairing and lobby creation commit together.
func (m *Manager) CreateLobbyTx(ctx context.Context, tx store.Tx, hostID uuid.UUID, hostUsername, serverID string, maxPlayers int) (*models.Lobby, error) {
	if maxPlayers <= 0 {
		maxPlayers = DefaultMaxPlayers
	}

	code, err := m.generateCodeTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	l := &models.Lobby{
		ID:         uuid.New(),
		Code:       code,
		ServerID:   serverID,
		HostID:     hostID,
		Status:     models.LobbyWaiting,
		MaxPlayers: maxPlayers,
		Players: []models.LobbyPlayer{{
			UserID:   hostID,
			Username: hostUsername,
			Ready:    true,
			IsHost:   true,
			JoinedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Lobbies().Insert(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// generateCodeTx retries random 4-digit codes against the active set.
func (m *Manager) generateCodeTx(ctx context.Context, tx store.Tx) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code := fmt.Sprintf("%04d", rand.Intn(10000))
		used, err := tx.Lobbies().CodeInUse(ctx, code)
		if err != nil {
			return "", err
		}
		if !used {
			return code, nil
		}
	}
	return "", apperr.Conflict("could not allocate a unique lobby code")
}

// JoinLobby seats a user. Joining a lobby the user is already in is a
// no-op returning the current state.
func (m *Manager) JoinLobby(ctx context.Context, lobbyID, userID uuid.UUID, username string) (*models.Lobby, error) {
	var l *models.Lobby
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		l, err = tx.Lobbies().Get(ctx, lobbyID)
		if err != nil {
			return err
		}
		return m.JoinTx(ctx, tx, l, userID, username)
	})
	if err != nil {
		return nil, err
	}
	m.publishLobbyUpdated(l)
	return l, nil
}

// JoinLobbyByCode resolves the 4-digit code within the server's active
// lobbies and seats the user.
func (m *Manager) JoinLobbyByCode(ctx context.Context, serverID, code string, userID uuid.UUID, username string) (*models.Lobby, error) {
	var l *models.Lobby
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		l, err = tx.Lobbies().GetByCode(ctx, serverID, code)
		if err != nil {
			return err
		}
		return m.JoinTx(ctx, tx, l, userID, username)
	})
	if err != nil {
		return nil, err
	}
	m.publishLobbyUpdated(l)
	return l, nil
}

// JoinTx seats a user inside the caller's transaction. Membership is
// re-read from the row set loaded in this same transaction, so two
// concurrent joins cannot race a duplicate seat or overshoot MaxPlayers.
func (m *Manager) JoinTx(ctx context.Context, tx store.Tx, l *models.Lobby, userID uuid.UUID, username string) error {
	if l.HasPlayer(userID) {
		return nil
	}
	if len(l.Players) >= l.MaxPlayers {
		return apperr.Conflict("lobby %s is full", l.ID)
	}

	now := time.Now().UTC()
	p := models.LobbyPlayer{
		UserID:   userID,
		Username: username,
		Ready:    false,
		IsHost:   false,
		JoinedAt: now,
	}
	if err := tx.Lobbies().AddPlayer(ctx, l.ID, p); err != nil {
		return err
	}
	l.Players = append(l.Players, p)
	l.UpdatedAt = now
	return tx.Lobbies().Update(ctx, l)
}

// SetPlayerReady flips a member's ready flag.
func (m *Manager) SetPlayerReady(ctx context.Context, lobbyID, userID uuid.UUID, ready bool) (*models.Lobby, error) {
	var l *models.Lobby
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		l, err = tx.Lobbies().Get(ctx, lobbyID)
		if err != nil {
			return err
		}
		p := l.Player(userID)
		if p == nil {
			return apperr.NotFound("user %s is not in lobby %s", userID, lobbyID)
		}
		p.Ready = ready
		return tx.Lobbies().UpdatePlayer(ctx, lobbyID, *p)
	})
	if err != nil {
		return nil, err
	}
	m.publishLobbyUpdated(l)
	return l, nil
}

// LeaveLobby removes a user from a lobby. Safe to resend: an absent lobby
// or a user who already left is a no-op. The same path serves explicit
// leaves, host kicks, and reconnect-grace expiry, so host failover and
// mid-match turn re-sequencing behave identically everywhere.
func (m *Manager) LeaveLobby(ctx context.Context, lobbyID, userID uuid.UUID) error {
	var queued []events.Event
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		queued = queued[:0]
		l, err := tx.Lobbies().Get(ctx, lobbyID)
		if apperr.Is(err, apperr.CodeNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		queued, err = m.removePlayerTx(ctx, tx, l, userID)
		return err
	})
	if err != nil {
		return err
	}
	for _, ev := range queued {
		m.bus.Publish(ev)
	}
	return nil
}

// RemoveLobbyPlayer is the host-gated kick. It shares the removal path
// with LeaveLobby.
func (m *Manager) RemoveLobbyPlayer(ctx context.Context, lobbyID, targetUserID, requestedBy uuid.UUID) error {
	var queued []events.Event
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		queued = queued[:0]
		l, err := tx.Lobbies().Get(ctx, lobbyID)
		if err != nil {
			return err
		}
		if requestedBy != l.HostID {
			return apperr.Forbidden("only the host may remove players")
		}
		if targetUserID == requestedBy {
			return apperr.InvalidArgument("host cannot remove themselves; leave instead")
		}
		queued, err = m.removePlayerTx(ctx, tx, l, targetUserID)
		return err
	})
	if err != nil {
		return err
	}
	for _, ev := range queued {
		m.bus.Publish(ev)
	}
	return nil
}

// removePlayerTx removes a seat and repairs every invariant that depends
// on it: last departure deletes the lobby and any in-progress match, a
// departing host fails over to the earliest remaining joiner, an
// in-progress match is re-sequenced, and the departing user's play
// sessions are completed. Returns the events to publish after commit.
func (m *Manager) removePlayerTx(ctx context.Context, tx store.Tx, l *models.Lobby, userID uuid.UUID) ([]events.Event, error) {
	if !l.HasPlayer(userID) {
		return nil, nil
	}

	now := time.Now().UTC()
	var queued []events.Event

	if err := tx.Lobbies().RemovePlayer(ctx, l.ID, userID); err != nil {
		return nil, err
	}
	for i := range l.Players {
		if l.Players[i].UserID == userID {
			l.Players = append(l.Players[:i], l.Players[i+1:]...)
			break
		}
	}

	completed, err := tx.Sessions().CompleteByUser(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	for _, s := range completed {
		queued = append(queued, events.Event{
			Type:     events.SessionUpdated,
			ServerID: s.ServerID,
			UserID:   s.UserID,
			Payload:  map[string]interface{}{"session": s},
		})
	}

	if len(l.Players) == 0 {
		mt, err := tx.Matches().GetByLobby(ctx, l.ID)
		if err == nil {
			if err := tx.Matches().Delete(ctx, mt.ID); err != nil {
				return nil, err
			}
		} else if !apperr.Is(err, apperr.CodeNotFound) {
			return nil, err
		}
		if err := tx.Lobbies().Delete(ctx, l.ID); err != nil {
			return nil, err
		}
		queued = append(queued, events.Event{
			Type:     events.LobbyDeleted,
			ServerID: l.ServerID,
			LobbyID:  l.ID,
			Payload:  map[string]interface{}{"lobby_id": l.ID},
		})
		return queued, nil
	}

	if l.HostID == userID {
		// Host failover: earliest remaining joiner takes over. Players
		// is ordered by JoinedAt.
		newHost := &l.Players[0]
		newHost.IsHost = true
		l.HostID = newHost.UserID
		if err := tx.Lobbies().UpdatePlayer(ctx, l.ID, *newHost); err != nil {
			return nil, err
		}
	}

	mt, err := tx.Matches().GetByLobby(ctx, l.ID)
	if err == nil {
		if err := m.engine.RemovePlayerTx(ctx, tx, mt, userID); err != nil {
			return nil, err
		}
		queued = append(queued, events.Event{
			Type:     events.MatchUpdated,
			ServerID: mt.ServerID,
			MatchID:  mt.ID,
			Payload:  map[string]interface{}{"match": mt},
		})
	} else if !apperr.Is(err, apperr.CodeNotFound) {
		return nil, err
	}

	l.UpdatedAt = now
	if err := tx.Lobbies().Update(ctx, l); err != nil {
		return nil, err
	}
	queued = append(queued, events.Event{
		Type:     events.LobbyUpdated,
		ServerID: l.ServerID,
		LobbyID:  l.ID,
		Payload:  map[string]interface{}{"lobby": l},
	})
	return queued, nil
}

// StartLobby begins a match from a waiting lobby once every player has
// readied up. The host opens the first turn.
func (m *Manager) StartLobby(ctx context.Context, lobbyID uuid.UUID) (*models.Match, error) {
	var (
		l  *models.Lobby
		mt *models.Match
	)
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		l, err = tx.Lobbies().Get(ctx, lobbyID)
		if err != nil {
			return err
		}
		if l.Status != models.LobbyWaiting {
			return apperr.Conflict("lobby %s has already started", lobbyID)
		}
		if !l.AllReady() {
			return apperr.NotReady("all players must be ready to start")
		}

		board := m.grids.Generate(GridRows, GridCols)
		gridData, err := json.Marshal(board)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		players := make([]models.MatchPlayer, len(l.Players))
		for i, p := range l.Players {
			players[i] = models.MatchPlayer{
				UserID:    p.UserID,
				Username:  p.Username,
				TurnOrder: i,
			}
		}

		first := l.HostID
		if l.Player(first) == nil {
			first = l.Players[0].UserID
		}

		lobbyRef := l.ID
		mt = &models.Match{
			ID:              uuid.New(),
			LobbyID:         &lobbyRef,
			ServerID:        l.ServerID,
			Status:          models.MatchInProgress,
			GridData:        gridData,
			CurrentPlayerID: &first,
			RoundNumber:     1,
			Players:         players,
			CreatedAt:       now,
		}
		if err := tx.Matches().Insert(ctx, mt); err != nil {
			return err
		}

		l.Status = models.LobbyPlaying
		l.UpdatedAt = now
		return tx.Lobbies().Update(ctx, l)
	})
	if err != nil {
		return nil, err
	}

	m.bus.Publish(events.Event{
		Type:     events.MatchStarted,
		ServerID: mt.ServerID,
		LobbyID:  l.ID,
		MatchID:  mt.ID,
		Payload:  map[string]interface{}{"match": mt},
	})
	m.publishLobbyUpdated(l)
	return mt, nil
}

// DepartAll runs the leave path for every lobby the user belongs to. The
// connection registry calls this when a reconnect grace period expires.
func (m *Manager) DepartAll(ctx context.Context, userID uuid.UUID) {
	var lobbies []models.Lobby
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		lobbies, err = tx.Lobbies().ListByMember(ctx, userID)
		return err
	})
	if err != nil {
		m.log.Errorf("failed to list lobbies for departed user %s: %v", userID, err)
		return
	}
	for _, l := range lobbies {
		if err := m.LeaveLobby(ctx, l.ID, userID); err != nil {
			m.log.Errorf("failed to remove departed user %s from lobby %s: %v", userID, l.ID, err)
		}
	}
}

// RunSweeper deletes waiting lobbies that sat idle with at most one player
// past the inactivity window. Blocks until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.sweepIdle(ctx); err != nil {
				m.log.Errorf("lobby inactivity sweep failed: %v", err)
			}
		}
	}
}

func (m *Manager) sweepIdle(ctx context.Context) error {
	var queued []events.Event
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		queued = queued[:0]
		// Conditions are re-checked against rows read inside this
		// transaction, not a stale snapshot.
		idle, err := tx.Lobbies().ListIdleWaiting(ctx, time.Now().UTC().Add(-m.idleTimeout))
		if err != nil {
			return err
		}
		for _, l := range idle {
			if len(l.Players) > 1 {
				continue
			}
			if err := tx.Lobbies().Delete(ctx, l.ID); err != nil {
				return err
			}
			m.log.Infof("swept idle lobby %s (code %s)", l.ID, l.Code)
			queued = append(queued, events.Event{
				Type:     events.LobbyDeleted,
				ServerID: l.ServerID,
				LobbyID:  l.ID,
				Payload:  map[string]interface{}{"lobby_id": l.ID},
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, ev := range queued {
		m.bus.Publish(ev)
	}
	return nil
}

func (m *Manager) publishLobbyUpdated(l *models.Lobby) {
	m.bus.Publish(events.Event{
		Type:     events.LobbyUpdated,
		ServerID: l.ServerID,
		LobbyID:  l.ID,
		Payload:  map[string]interface{}{"lobby": l},
	})
}
