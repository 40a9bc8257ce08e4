// internal/match/engine_test.go
package match

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordhex/wordhex/internal/apperr"
	"github.com/wordhex/wordhex/internal/events"
	"github.com/wordhex/wordhex/internal/models"
	"github.com/wordhex/wordhex/internal/store"
	"github.com/wordhex/wordhex/internal/store/memstore"
)

// eventSink collects bus publishes for assertions.
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

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setupEngine(t *testing.T) (*Engine, store.Store, *eventSink) {
	t.Helper()
	st := memstore.New()
	bus := events.New()
	sink := &eventSink{}
	bus.Subscribe(sink.handle)
	return NewEngine(st, bus, testLogger()), st, sink
}

func seedMatch(t *testing.T, st store.Store, players ...models.MatchPlayer) *models.Match {
	t.Helper()
	m := &models.Match{
		ID:          uuid.New(),
		ServerID:    "alpha",
		Status:      models.MatchInProgress,
		RoundNumber: 1,
		Players:     players,
		CreatedAt:   time.Now().UTC(),
	}
	if len(players) > 0 {
		id := players[0].UserID
		m.CurrentPlayerID = &id
	}
	err := st.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.Matches().Insert(context.Background(), m)
	})
	require.NoError(t, err)
	return m
}

func player(name string, order int) models.MatchPlayer {
	return models.MatchPlayer{UserID: uuid.New(), Username: name, TurnOrder: order}
}

func TestUpdateProgressPartial(t *testing.T) {
	engine, st, sink := setupEngine(t)
	p1 := player("ada", 0)
	p2 := player("ben", 1)
	m := seedMatch(t, st, p1, p2)

	words := 3
	round := 2
	grid := json.RawMessage(`{"rows":7}`)
	p1.Score = 42
	p1.WordsFound = 3

	out, err := engine.UpdateProgress(context.Background(), ProgressUpdate{
		MatchID:     m.ID,
		Players:     []models.MatchPlayer{p1},
		CurrentPlayerID: &p2.UserID,
		GridData:    grid,
		WordsFound:  &words,
		RoundNumber: &round,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, out.WordsFound)
	assert.Equal(t, 2, out.RoundNumber)
	assert.Equal(t, grid, out.GridData)
	require.NotNil(t, out.CurrentPlayerID)
	assert.Equal(t, p2.UserID, *out.CurrentPlayerID)
	require.NotNil(t, out.Player(p1.UserID))
	assert.Equal(t, 42, out.Player(p1.UserID).Score)
	// untouched fields survive
	assert.Equal(t, models.MatchInProgress, out.Status)
	assert.Len(t, out.Players, 2)

	assert.Len(t, sink.byType(events.MatchUpdated), 1)
}

func TestUpdateProgressClearsLastTurnOnExplicitNull(t *testing.T) {
	engine, st, _ := setupEngine(t)
	p1 := player("ada", 0)
	m := seedMatch(t, st, p1)

	turn := &models.TurnRecord{PlayerID: p1.UserID, Username: "ada", Word: "hex", Score: 9, Round: 1}
	out, err := engine.UpdateProgress(context.Background(), ProgressUpdate{
		MatchID: m.ID, LastTurn: turn, LastTurnSet: true,
	})
	require.NoError(t, err)
	require.NotNil(t, out.LastTurn)

	// omitted: banner stays
	out, err = engine.UpdateProgress(context.Background(), ProgressUpdate{MatchID: m.ID})
	require.NoError(t, err)
	assert.NotNil(t, out.LastTurn)

	// explicit clear
	out, err = engine.UpdateProgress(context.Background(), ProgressUpdate{
		MatchID: m.ID, LastTurnSet: true,
	})
	require.NoError(t, err)
	assert.Nil(t, out.LastTurn)
}

func TestUpdateProgressGameOverIsIdempotent(t *testing.T) {
	engine, st, _ := setupEngine(t)
	p1 := player("ada", 0)
	m := seedMatch(t, st, p1)

	first, err := engine.UpdateProgress(context.Background(), ProgressUpdate{MatchID: m.ID, GameOver: true})
	require.NoError(t, err)
	require.NotNil(t, first.CompletedAt)
	assert.Equal(t, models.MatchCompleted, first.Status)
	assert.Nil(t, first.CurrentPlayerID)

	second, err := engine.UpdateProgress(context.Background(), ProgressUpdate{MatchID: m.ID, GameOver: true})
	require.NoError(t, err)
	assert.Equal(t, first.CompletedAt.Unix(), second.CompletedAt.Unix())
}

func TestUpdateProgressUnknownMatch(t *testing.T) {
	engine, _, _ := setupEngine(t)
	_, err := engine.UpdateProgress(context.Background(), ProgressUpdate{MatchID: uuid.New()})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestRecordResultsRanksAndAggregates(t *testing.T) {
	engine, st, sink := setupEngine(t)
	p1 := player("ada", 0)
	p2 := player("ben", 1)
	p3 := player("cyd", 2)
	m := seedMatch(t, st, p1, p2, p3)

	p1.Score, p1.WordsFound = 50, 5
	p2.Score, p2.WordsFound = 80, 7
	p3.Score, p3.WordsFound = 50, 4

	out, err := engine.RecordResults(context.Background(), Results{
		MatchID:  m.ID,
		ServerID: "alpha",
		Players:  []models.MatchPlayer{p1, p2, p3},
	})
	require.NoError(t, err)

	assert.Equal(t, models.MatchCompleted, out.Status)
	require.NotNil(t, out.CompletedAt)
	require.Len(t, out.Players, 3)

	// descending score, ties keep input order
	assert.Equal(t, p2.UserID, out.Players[0].UserID)
	assert.Equal(t, p1.UserID, out.Players[1].UserID)
	assert.Equal(t, p3.UserID, out.Players[2].UserID)
	for i, p := range out.Players {
		require.NotNil(t, p.Rank)
		assert.Equal(t, i+1, *p.Rank)
	}

	// winner's stats aggregate
	var stats *models.UserStats
	err = st.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		stats, err = tx.Users().Stats(context.Background(), p2.UserID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalMatches)
	assert.Equal(t, 1, stats.TotalWins)
	assert.Equal(t, 80, stats.TotalScore)
	assert.Equal(t, 7, stats.TotalWords)
	assert.Equal(t, 80, stats.BestScore)
	assert.Equal(t, 1, stats.CurrentStreak)

	// a loser gets a match counted but no win
	err = st.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		stats, err = tx.Users().Stats(context.Background(), p1.UserID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalMatches)
	assert.Equal(t, 0, stats.TotalWins)

	assert.Len(t, sink.byType(events.MatchCompleted), 1)
	assert.Len(t, sink.byType(events.StatsUpdated), 3)
}

func TestRecordResultsCreatesMissingMatch(t *testing.T) {
	engine, st, _ := setupEngine(t)
	p1 := player("ada", 0)
	p1.Score = 30

	id := uuid.New()
	out, err := engine.RecordResults(context.Background(), Results{
		MatchID:  id,
		ServerID: "alpha",
		Players:  []models.MatchPlayer{p1},
	})
	require.NoError(t, err)
	assert.Equal(t, id, out.ID)
	assert.Equal(t, models.MatchCompleted, out.Status)

	err = st.WithTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.Matches().Get(context.Background(), id)
		return err
	})
	assert.NoError(t, err)
}

func TestRecordResultsChallengesServerRecord(t *testing.T) {
	engine, st, sink := setupEngine(t)
	p1 := player("ada", 0)
	p1.Score = 100
	m := seedMatch(t, st, p1)

	_, err := engine.RecordResults(context.Background(), Results{
		MatchID: m.ID, ServerID: "alpha", Players: []models.MatchPlayer{p1},
	})
	require.NoError(t, err)
	require.Len(t, sink.byType(events.ServerRecordUpdated), 1)

	// a lower score later does not displace the record
	p2 := player("ben", 0)
	p2.Score = 60
	m2 := seedMatch(t, st, p2)
	_, err = engine.RecordResults(context.Background(), Results{
		MatchID: m2.ID, ServerID: "alpha", Players: []models.MatchPlayer{p2},
	})
	require.NoError(t, err)
	assert.Len(t, sink.byType(events.ServerRecordUpdated), 1)

	var rec *models.ServerRecord
	err = st.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		rec, err = tx.Records().Get(context.Background(), "alpha")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, p1.UserID, rec.UserID)
	assert.Equal(t, 100, rec.Score)
}

func TestRecordResultsFinishesLobby(t *testing.T) {
	engine, st, _ := setupEngine(t)
	p1 := player("ada", 0)

	lobbyID := uuid.New()
	err := st.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.Lobbies().Insert(context.Background(), &models.Lobby{
			ID:         lobbyID,
			Code:       "1234",
			ServerID:   "alpha",
			HostID:     p1.UserID,
			Status:     models.LobbyPlaying,
			MaxPlayers: 8,
		})
	})
	require.NoError(t, err)

	m := seedMatch(t, st, p1)
	_, err = engine.RecordResults(context.Background(), Results{
		MatchID:  m.ID,
		LobbyID:  &lobbyID,
		ServerID: "alpha",
		Players:  []models.MatchPlayer{p1},
	})
	require.NoError(t, err)

	var l *models.Lobby
	err = st.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		l, err = tx.Lobbies().Get(context.Background(), lobbyID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, models.LobbyFinished, l.Status)
}

func TestRecordResultsRejectsEmptyRoster(t *testing.T) {
	engine, _, _ := setupEngine(t)
	_, err := engine.RecordResults(context.Background(), Results{MatchID: uuid.New()})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
}

func TestRemovePlayerTxReassignsTurn(t *testing.T) {
	engine, st, _ := setupEngine(t)
	p1 := player("ada", 0)
	p2 := player("ben", 1)
	p3 := player("cyd", 2)
	m := seedMatch(t, st, p1, p2, p3)

	err := st.WithTx(context.Background(), func(tx store.Tx) error {
		got, err := tx.Matches().Get(context.Background(), m.ID)
		if err != nil {
			return err
		}
		// the holder departs mid-turn
		return engine.RemovePlayerTx(context.Background(), tx, got, p1.UserID)
	})
	require.NoError(t, err)

	var got *models.Match
	err = st.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		got, err = tx.Matches().Get(context.Background(), m.ID)
		return err
	})
	require.NoError(t, err)

	assert.Len(t, got.Players, 2)
	assert.Nil(t, got.Player(p1.UserID))
	require.NotNil(t, got.CurrentPlayerID)
	assert.Equal(t, p2.UserID, *got.CurrentPlayerID)
}

func TestRemovePlayerTxClearsOwnedLastTurn(t *testing.T) {
	engine, st, _ := setupEngine(t)
	p1 := player("ada", 0)
	p2 := player("ben", 1)
	m := seedMatch(t, st, p1, p2)

	_, err := engine.UpdateProgress(context.Background(), ProgressUpdate{
		MatchID:     m.ID,
		LastTurn:    &models.TurnRecord{PlayerID: p2.UserID, Username: "ben", Word: "waxy", Score: 14, Round: 1},
		LastTurnSet: true,
	})
	require.NoError(t, err)

	err = st.WithTx(context.Background(), func(tx store.Tx) error {
		got, err := tx.Matches().Get(context.Background(), m.ID)
		if err != nil {
			return err
		}
		return engine.RemovePlayerTx(context.Background(), tx, got, p2.UserID)
	})
	require.NoError(t, err)

	var got *models.Match
	err = st.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		got, err = tx.Matches().Get(context.Background(), m.ID)
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, got.LastTurn)
}

func TestRemovePlayerTxUnknownPlayerIsNoop(t *testing.T) {
	engine, st, _ := setupEngine(t)
	p1 := player("ada", 0)
	m := seedMatch(t, st, p1)

	err := st.WithTx(context.Background(), func(tx store.Tx) error {
		got, err := tx.Matches().Get(context.Background(), m.ID)
		if err != nil {
			return err
		}
		return engine.RemovePlayerTx(context.Background(), tx, got, uuid.New())
	})
	require.NoError(t, err)
}
