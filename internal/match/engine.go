// internal/match/engine.go
package match

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wordhex/wordhex/internal/apperr"
	"github.com/wordhex/wordhex/internal/cache"
	"github.com/wordhex/wordhex/internal/events"
	"github.com/wordhex/wordhex/internal/models"
	"github.com/wordhex/wordhex/internal/store"
)

// Engine drives the match lifecycle: incremental progress updates, player
// removal re-sequencing, and authoritative finalization with stats
// aggregation. Every operation is one transaction against the store.
type Engine struct {
	store   store.Store
	bus     *events.Bus
	log     *logrus.Logger
	journal *cache.Journal // optional, best-effort history export
}

func NewEngine(st store.Store, bus *events.Bus, log *logrus.Logger) *Engine {
	return &Engine{store: st, bus: bus, log: log}
}

// SetJournal attaches the Redis match-history journal. Safe to leave unset.
func (e *Engine) SetJournal(j *cache.Journal) {
	e.journal = j
}

// ProgressUpdate carries a partial match update. Nil pointer fields are
// left untouched; LastTurnSet distinguishes "omitted" from an explicit
// null that clears LastTurn.
type ProgressUpdate struct {
	MatchID         uuid.UUID
	Players         []models.MatchPlayer
	CurrentPlayerID *uuid.UUID
	GridData        json.RawMessage
	WordsFound      *int
	RoundNumber     *int
	LastTurn        *models.TurnRecord
	LastTurnSet     bool
	GameOver        bool
}

// UpdateProgress applies a partial update to an in-progress match. Supplied
// players are upserted by (matchID, userID) and their sessions touched so
// the stale-session sweep leaves active play alone. GameOver forces the
// terminal transition, stamping the completion time exactly once.
func (e *Engine) UpdateProgress(ctx context.Context, u ProgressUpdate) (*models.Match, error) {
	var out *models.Match
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		m, err := tx.Matches().Get(ctx, u.MatchID)
		if err != nil {
			return err
		}

		if u.GridData != nil {
			m.GridData = u.GridData
		}
		if u.WordsFound != nil {
			m.WordsFound = *u.WordsFound
		}
		if u.RoundNumber != nil {
			m.RoundNumber = *u.RoundNumber
		}
		if u.CurrentPlayerID != nil {
			id := *u.CurrentPlayerID
			m.CurrentPlayerID = &id
		}
		if u.LastTurnSet {
			m.LastTurn = u.LastTurn
		}

		now := time.Now().UTC()
		nextOrder := len(m.Players)
		for _, p := range u.Players {
			if existing := m.Player(p.UserID); existing != nil {
				p.TurnOrder = existing.TurnOrder
				*existing = p
			} else {
				p.TurnOrder = nextOrder
				nextOrder++
				m.Players = append(m.Players, p)
			}
			if err := tx.Matches().UpsertPlayer(ctx, m.ID, p); err != nil {
				return err
			}
			if err := tx.Sessions().Touch(ctx, p.UserID, now); err != nil {
				return err
			}
		}

		if u.GameOver {
			m.Status = models.MatchCompleted
			if m.CompletedAt == nil {
				m.CompletedAt = &now
			}
			m.CurrentPlayerID = nil
		}

		if err := tx.Matches().Update(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.bus.Publish(events.Event{
		Type:     events.MatchUpdated,
		ServerID: out.ServerID,
		MatchID:  out.ID,
		Payload:  map[string]interface{}{"match": out},
	})
	return out, nil
}

// RemovePlayerTx removes a participant from an in-progress match inside the
// caller's transaction, re-sequencing the turn so the holder is always a
// live participant. The lobby manager invokes this on leave and kick so a
// disconnect-driven departure behaves exactly like an explicit one. The
// passed match is mutated to the post-removal state.
func (e *Engine) RemovePlayerTx(ctx context.Context, tx store.Tx, m *models.Match, userID uuid.UUID) error {
	if m.Player(userID) == nil {
		return nil
	}

	originalOrder := m.TurnOrderIDs()

	if err := tx.Matches().RemovePlayer(ctx, m.ID, userID); err != nil {
		return err
	}
	for i := range m.Players {
		if m.Players[i].UserID == userID {
			m.Players = append(m.Players[:i], m.Players[i+1:]...)
			break
		}
	}

	current := uuid.Nil
	if m.CurrentPlayerID != nil {
		current = *m.CurrentPlayerID
	}
	next := NextTurnHolder(originalOrder, m.TurnOrderIDs(), userID, current)
	if next == uuid.Nil {
		m.CurrentPlayerID = nil
	} else {
		m.CurrentPlayerID = &next
	}

	if m.LastTurn != nil && m.LastTurn.PlayerID == userID {
		m.LastTurn = nil
	}

	return tx.Matches().Update(ctx, m)
}

// Results is the authoritative final score sheet for a match.
type Results struct {
	MatchID    uuid.UUID
	LobbyID    *uuid.UUID
	ServerID   string
	Players    []models.MatchPlayer
	GridData   json.RawMessage
	WordsFound *int
}

// RecordResults finalizes a match independent of any incremental progress:
// the match row is overwritten (or created) as completed, the roster is
// replaced wholesale with ranks assigned by descending score (stable on
// ties), per-player stats aggregates are incremented, the server high-score
// record is challenged, and the originating lobby, if it still exists,
// moves to finished.
func (e *Engine) RecordResults(ctx context.Context, res Results) (*models.Match, error) {
	if len(res.Players) == 0 {
		return nil, apperr.InvalidArgument("results must list at least one player")
	}

	ranked := rankPlayers(res.Players)
	now := time.Now().UTC()

	var (
		out    *models.Match
		queued []events.Event
	)
	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		queued = queued[:0]

		m, err := tx.Matches().Get(ctx, res.MatchID)
		if apperr.Is(err, apperr.CodeNotFound) {
			m = &models.Match{
				ID:        res.MatchID,
				LobbyID:   res.LobbyID,
				ServerID:  res.ServerID,
				Status:    models.MatchCompleted,
				CreatedAt: now,
			}
			if err := tx.Matches().Insert(ctx, m); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if res.LobbyID != nil {
			m.LobbyID = res.LobbyID
		}
		if res.GridData != nil {
			m.GridData = res.GridData
		}
		if res.WordsFound != nil {
			m.WordsFound = *res.WordsFound
		}
		m.Status = models.MatchCompleted
		if m.CompletedAt == nil {
			m.CompletedAt = &now
		}
		m.CurrentPlayerID = nil
		m.Players = ranked

		if err := tx.Matches().ReplacePlayers(ctx, m.ID, ranked); err != nil {
			return err
		}
		if err := tx.Matches().Update(ctx, m); err != nil {
			return err
		}

		for _, p := range ranked {
			outcome := models.MatchOutcome{
				Won:        *p.Rank == 1,
				Score:      p.Score,
				WordsFound: p.WordsFound,
			}
			if err := tx.Users().ApplyMatchOutcome(ctx, p.UserID, outcome); err != nil {
				return err
			}
			queued = append(queued, events.Event{
				Type:     events.StatsUpdated,
				ServerID: m.ServerID,
				UserID:   p.UserID,
			})
		}

		if ev, err := e.challengeRecordTx(ctx, tx, m, ranked[0], now); err != nil {
			return err
		} else if ev != nil {
			queued = append(queued, *ev)
		}

		if m.LobbyID != nil {
			if err := e.finishLobbyTx(ctx, tx, *m.LobbyID, now); err != nil {
				return err
			}
		}

		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	completed := events.Event{
		Type:     events.MatchCompleted,
		ServerID: out.ServerID,
		MatchID:  out.ID,
		Payload:  map[string]interface{}{"match": out},
	}
	if out.LobbyID != nil {
		completed.LobbyID = *out.LobbyID
	}
	e.bus.Publish(completed)
	for _, ev := range queued {
		e.bus.Publish(ev)
	}

	e.exportHistory(ctx, out)
	return out, nil
}

// challengeRecordTx updates the per-server high score if the winner beat it.
func (e *Engine) challengeRecordTx(ctx context.Context, tx store.Tx, m *models.Match, winner models.MatchPlayer, now time.Time) (*events.Event, error) {
	if m.ServerID == "" {
		return nil, nil
	}
	rec, err := tx.Records().Get(ctx, m.ServerID)
	if err != nil && !apperr.Is(err, apperr.CodeNotFound) {
		return nil, err
	}
	if rec != nil && winner.Score <= rec.Score {
		return nil, nil
	}
	newRec := &models.ServerRecord{
		ServerID:   m.ServerID,
		UserID:     winner.UserID,
		Username:   winner.Username,
		Score:      winner.Score,
		AchievedAt: now,
	}
	if err := tx.Records().Upsert(ctx, newRec); err != nil {
		return nil, err
	}
	return &events.Event{
		Type:     events.ServerRecordUpdated,
		ServerID: m.ServerID,
		UserID:   winner.UserID,
		Payload:  map[string]interface{}{"record": newRec},
	}, nil
}

func (e *Engine) finishLobbyTx(ctx context.Context, tx store.Tx, lobbyID uuid.UUID, now time.Time) error {
	l, err := tx.Lobbies().Get(ctx, lobbyID)
	if apperr.Is(err, apperr.CodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	l.Status = models.LobbyFinished
	l.UpdatedAt = now
	return tx.Lobbies().Update(ctx, l)
}

// rankPlayers assigns ranks 1..N by descending score; the stable sort
// preserves input order on ties. TurnOrder follows input order.
func rankPlayers(players []models.MatchPlayer) []models.MatchPlayer {
	ranked := make([]models.MatchPlayer, len(players))
	copy(ranked, players)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	for i := range ranked {
		rank := i + 1
		ranked[i].Rank = &rank
		ranked[i].TurnOrder = i
	}
	return ranked
}

func (e *Engine) exportHistory(ctx context.Context, m *models.Match) {
	if e.journal == nil {
		return
	}
	rec := cache.MatchRecord{
		MatchID:    m.ID,
		ServerID:   m.ServerID,
		WordsFound: m.WordsFound,
		Players:    make([]cache.PlayerRecord, 0, len(m.Players)),
	}
	if m.CompletedAt != nil {
		rec.CompletedAt = m.CompletedAt.Unix()
	}
	for _, p := range m.Players {
		pr := cache.PlayerRecord{
			UserID:   p.UserID,
			Username: p.Username,
			Score:    p.Score,
			Words:    p.WordsFound,
		}
		if p.Rank != nil {
			pr.Rank = *p.Rank
		}
		rec.Players = append(rec.Players, pr)
	}
	if err := e.journal.PushMatchRecord(ctx, rec); err != nil {
		e.log.Warnf("failed to export match %s history: %v", m.ID, err)
	}
}
