// internal/lobby/manager_test.go
package lobby

import (
	"context"
	"io"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordhex/wordhex/internal/apperr"
	"github.com/wordhex/wordhex/internal/events"
	"github.com/wordhex/wordhex/internal/grid"
	"github.com/wordhex/wordhex/internal/match"
	"github.com/wordhex/wordhex/internal/models"
	"github.com/wordhex/wordhex/internal/store"
	"github.com/wordhex/wordhex/internal/store/memstore"
)

type eventSink struct {
	mu  sync.Mutex
	evs []events.Event
}

func (s *eventSink) handle(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evs = append(s.evs, ev)
}

func (s *eventSink) byType(t string) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, ev := range s.evs {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func setupManager(t *testing.T) (*Manager, store.Store, *eventSink) {
	t.Helper()
	st := memstore.New()
	bus := events.New()
	sink := &eventSink{}
	bus.Subscribe(sink.handle)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	engine := match.NewEngine(st, bus, logger)
	grids := grid.NewGenerator(rand.NewSource(1))
	return NewManager(st, bus, engine, grids, logger), st, sink
}

func getLobby(t *testing.T, st store.Store, id uuid.UUID) *models.Lobby {
	t.Helper()
	var l *models.Lobby
	err := st.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		l, err = tx.Lobbies().Get(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	return l
}

func TestCreateLobby(t *testing.T) {
	mgr, _, sink := setupManager(t)
	host := uuid.New()

	l, err := mgr.CreateLobby(context.Background(), host, "ada", "alpha", 0)
	require.NoError(t, err)

	assert.Equal(t, host, l.HostID)
	assert.Equal(t, models.LobbyWaiting, l.Status)
	assert.Equal(t, DefaultMaxPlayers, l.MaxPlayers)
	assert.Len(t, l.Code, 4)
	require.Len(t, l.Players, 1)
	assert.True(t, l.Players[0].Ready)
	assert.True(t, l.Players[0].IsHost)
	assert.Len(t, sink.byType(events.LobbyUpdated), 1)
}

func TestJoinLobby(t *testing.T) {
	mgr, _, _ := setupManager(t)
	host := uuid.New()
	guest := uuid.New()

	l, err := mgr.CreateLobby(context.Background(), host, "ada", "alpha", 4)
	require.NoError(t, err)

	joined, err := mgr.JoinLobby(context.Background(), l.ID, guest, "ben")
	require.NoError(t, err)
	require.Len(t, joined.Players, 2)
	assert.False(t, joined.Player(guest).Ready)
	assert.False(t, joined.Player(guest).IsHost)

	// rejoin is a no-op
	again, err := mgr.JoinLobby(context.Background(), l.ID, guest, "ben")
	require.NoError(t, err)
	assert.Len(t, again.Players, 2)
}

func TestJoinLobbyByCode(t *testing.T) {
	mgr, _, _ := setupManager(t)
	host := uuid.New()
	guest := uuid.New()

	l, err := mgr.CreateLobby(context.Background(), host, "ada", "alpha", 4)
	require.NoError(t, err)

	joined, err := mgr.JoinLobbyByCode(context.Background(), "alpha", l.Code, guest, "ben")
	require.NoError(t, err)
	assert.Equal(t, l.ID, joined.ID)

	// wrong server, same code
	_, err = mgr.JoinLobbyByCode(context.Background(), "beta", l.Code, guest, "ben")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestJoinFullLobby(t *testing.T) {
	mgr, _, _ := setupManager(t)
	host := uuid.New()

	l, err := mgr.CreateLobby(context.Background(), host, "ada", "alpha", 2)
	require.NoError(t, err)
	_, err = mgr.JoinLobby(context.Background(), l.ID, uuid.New(), "ben")
	require.NoError(t, err)

	_, err = mgr.JoinLobby(context.Background(), l.ID, uuid.New(), "cyd")
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestSetPlayerReady(t *testing.T) {
	mgr, _, _ := setupManager(t)
	host := uuid.New()
	guest := uuid.New()

	l, err := mgr.CreateLobby(context.Background(), host, "ada", "alpha", 4)
	require.NoError(t, err)
	_, err = mgr.JoinLobby(context.Background(), l.ID, guest, "ben")
	require.NoError(t, err)

	updated, err := mgr.SetPlayerReady(context.Background(), l.ID, guest, true)
	require.NoError(t, err)
	assert.True(t, updated.Player(guest).Ready)
	assert.True(t, updated.AllReady())

	_, err = mgr.SetPlayerReady(context.Background(), l.ID, uuid.New(), true)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestStartLobby(t *testing.T) {
	mgr, st, sink := setupManager(t)
	host := uuid.New()
	guest := uuid.New()

	l, err := mgr.CreateLobby(context.Background(), host, "ada", "alpha", 4)
	require.NoError(t, err)
	_, err = mgr.JoinLobby(context.Background(), l.ID, guest, "ben")
	require.NoError(t, err)

	// not everyone ready yet
	_, err = mgr.StartLobby(context.Background(), l.ID)
	assert.True(t, apperr.Is(err, apperr.CodeNotReady))

	_, err = mgr.SetPlayerReady(context.Background(), l.ID, guest, true)
	require.NoError(t, err)

	mt, err := mgr.StartLobby(context.Background(), l.ID)
	require.NoError(t, err)

	assert.Equal(t, models.MatchInProgress, mt.Status)
	assert.NotEmpty(t, mt.GridData)
	assert.Equal(t, 1, mt.RoundNumber)
	require.NotNil(t, mt.CurrentPlayerID)
	assert.Equal(t, host, *mt.CurrentPlayerID)
	require.Len(t, mt.Players, 2)
	assert.Equal(t, 0, mt.Players[0].TurnOrder)
	assert.Equal(t, 1, mt.Players[1].TurnOrder)

	assert.Equal(t, models.LobbyPlaying, getLobby(t, st, l.ID).Status)
	assert.Len(t, sink.byType(events.MatchStarted), 1)

	// starting twice conflicts
	_, err = mgr.StartLobby(context.Background(), l.ID)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestLeaveLobbyHostFailover(t *testing.T) {
	mgr, st, _ := setupManager(t)
	host := uuid.New()
	guest := uuid.New()

	l, err := mgr.CreateLobby(context.Background(), host, "ada", "alpha", 4)
	require.NoError(t, err)
	_, err = mgr.JoinLobby(context.Background(), l.ID, guest, "ben")
	require.NoError(t, err)

	require.NoError(t, mgr.LeaveLobby(context.Background(), l.ID, host))

	after := getLobby(t, st, l.ID)
	assert.Equal(t, guest, after.HostID)
	require.Len(t, after.Players, 1)
	assert.True(t, after.Players[0].IsHost)
}

func TestLeaveLobbyLastPlayerDeletes(t *testing.T) {
	mgr, st, sink := setupManager(t)
	host := uuid.New()

	l, err := mgr.CreateLobby(context.Background(), host, "ada", "alpha", 4)
	require.NoError(t, err)
	require.NoError(t, mgr.LeaveLobby(context.Background(), l.ID, host))

	err = st.WithTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.Lobbies().Get(context.Background(), l.ID)
		return err
	})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	assert.Len(t, sink.byType(events.LobbyDeleted), 1)
}

func TestLeaveLobbyIdempotent(t *testing.T) {
	mgr, _, _ := setupManager(t)

	// absent lobby
	assert.NoError(t, mgr.LeaveLobby(context.Background(), uuid.New(), uuid.New()))

	// absent member
	l, err := mgr.CreateLobby(context.Background(), uuid.New(), "ada", "alpha", 4)
	require.NoError(t, err)
	assert.NoError(t, mgr.LeaveLobby(context.Background(), l.ID, uuid.New()))
}

func TestLeaveDuringMatchResequencesTurn(t *testing.T) {
	mgr, st, _ := setupManager(t)
	host := uuid.New()
	guest := uuid.New()
	third := uuid.New()

	l, err := mgr.CreateLobby(context.Background(), host, "ada", "alpha", 4)
	require.NoError(t, err)
	_, err = mgr.JoinLobby(context.Background(), l.ID, guest, "ben")
	require.NoError(t, err)
	_, err = mgr.JoinLobby(context.Background(), l.ID, third, "cyd")
	require.NoError(t, err)
	_, err = mgr.SetPlayerReady(context.Background(), l.ID, guest, true)
	require.NoError(t, err)
	_, err = mgr.SetPlayerReady(context.Background(), l.ID, third, true)
	require.NoError(t, err)

	mt, err := mgr.StartLobby(context.Background(), l.ID)
	require.NoError(t, err)
	require.Equal(t, host, *mt.CurrentPlayerID)

	// the turn holder walks out
	require.NoError(t, mgr.LeaveLobby(context.Background(), l.ID, host))

	var after *models.Match
	err = st.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		after, err = tx.Matches().Get(context.Background(), mt.ID)
		return err
	})
	require.NoError(t, err)
	assert.Len(t, after.Players, 2)
	require.NotNil(t, after.CurrentPlayerID)
	assert.Equal(t, guest, *after.CurrentPlayerID)
}

func TestRemoveLobbyPlayerHostGate(t *testing.T) {
	mgr, st, _ := setupManager(t)
	host := uuid.New()
	guest := uuid.New()

	l, err := mgr.CreateLobby(context.Background(), host, "ada", "alpha", 4)
	require.NoError(t, err)
	_, err = mgr.JoinLobby(context.Background(), l.ID, guest, "ben")
	require.NoError(t, err)

	// non-host cannot kick
	err = mgr.RemoveLobbyPlayer(context.Background(), l.ID, host, guest)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	// host cannot kick themselves
	err = mgr.RemoveLobbyPlayer(context.Background(), l.ID, host, host)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	require.NoError(t, mgr.RemoveLobbyPlayer(context.Background(), l.ID, guest, host))
	assert.Len(t, getLobby(t, st, l.ID).Players, 1)
}

func TestDepartAll(t *testing.T) {
	mgr, st, _ := setupManager(t)
	user := uuid.New()
	other := uuid.New()

	l1, err := mgr.CreateLobby(context.Background(), user, "ada", "alpha", 4)
	require.NoError(t, err)
	l2, err := mgr.CreateLobby(context.Background(), other, "ben", "alpha", 4)
	require.NoError(t, err)
	_, err = mgr.JoinLobby(context.Background(), l2.ID, user, "ada")
	require.NoError(t, err)

	mgr.DepartAll(context.Background(), user)

	// solo lobby is gone, shared lobby keeps the other player
	err = st.WithTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.Lobbies().Get(context.Background(), l1.ID)
		return err
	})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	assert.Len(t, getLobby(t, st, l2.ID).Players, 1)
}

func TestSweepIdleLobbies(t *testing.T) {
	mgr, st, sink := setupManager(t)
	mgr.SetIdleTimeout(time.Minute)

	stale := time.Now().UTC().Add(-2 * time.Minute)
	solo := &models.Lobby{
		ID: uuid.New(), Code: "1111", ServerID: "alpha", HostID: uuid.New(),
		Status: models.LobbyWaiting, MaxPlayers: 4,
		Players:   []models.LobbyPlayer{{UserID: uuid.New(), Username: "ada", JoinedAt: stale}},
		CreatedAt: stale, UpdatedAt: stale,
	}
	pair := &models.Lobby{
		ID: uuid.New(), Code: "2222", ServerID: "alpha", HostID: uuid.New(),
		Status: models.LobbyWaiting, MaxPlayers: 4,
		Players: []models.LobbyPlayer{
			{UserID: uuid.New(), Username: "ben", JoinedAt: stale},
			{UserID: uuid.New(), Username: "cyd", JoinedAt: stale},
		},
		CreatedAt: stale, UpdatedAt: stale,
	}
	err := st.WithTx(context.Background(), func(tx store.Tx) error {
		if err := tx.Lobbies().Insert(context.Background(), solo); err != nil {
			return err
		}
		return tx.Lobbies().Insert(context.Background(), pair)
	})
	require.NoError(t, err)

	require.NoError(t, mgr.sweepIdle(context.Background()))

	err = st.WithTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.Lobbies().Get(context.Background(), solo.ID)
		return err
	})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	assert.NotNil(t, getLobby(t, st, pair.ID))
	assert.Len(t, sink.byType(events.LobbyDeleted), 1)
}
