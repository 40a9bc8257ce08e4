// internal/store/memstore/memstore.go
//
// Package memstore is an in-memory store.Store used by tests and by local
// development without a database. A single mutex serializes transactions,
// and the whole state is snapshotted at transaction start so a failed fn
// rolls back to exactly the pre-transaction state.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wordhex/wordhex/internal/apperr"
	"github.com/wordhex/wordhex/internal/models"
	"github.com/wordhex/wordhex/internal/store"
)

type state struct {
	users    map[uuid.UUID]models.User
	stats    map[uuid.UUID]models.UserStats
	lobbies  map[uuid.UUID]models.Lobby
	matches  map[uuid.UUID]models.Match
	queue    map[uuid.UUID]models.MatchmakingEntry
	sessions map[uuid.UUID]models.Session
	records  map[string]models.ServerRecord
}

func newState() *state {
	return &state{
		users:    make(map[uuid.UUID]models.User),
		stats:    make(map[uuid.UUID]models.UserStats),
		lobbies:  make(map[uuid.UUID]models.Lobby),
		matches:  make(map[uuid.UUID]models.Match),
		queue:    make(map[uuid.UUID]models.MatchmakingEntry),
		sessions: make(map[uuid.UUID]models.Session),
		records:  make(map[string]models.ServerRecord),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.stats {
		c.stats[k] = v
	}
	for k, v := range s.lobbies {
		c.lobbies[k] = cloneLobby(v)
	}
	for k, v := range s.matches {
		c.matches[k] = cloneMatch(v)
	}
	for k, v := range s.queue {
		c.queue[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	return c
}

func cloneLobby(l models.Lobby) models.Lobby {
	players := make([]models.LobbyPlayer, len(l.Players))
	copy(players, l.Players)
	l.Players = players
	return l
}

func cloneMatch(m models.Match) models.Match {
	players := make([]models.MatchPlayer, len(m.Players))
	copy(players, m.Players)
	for i := range players {
		if players[i].Rank != nil {
			r := *players[i].Rank
			players[i].Rank = &r
		}
	}
	m.Players = players
	if m.LobbyID != nil {
		id := *m.LobbyID
		m.LobbyID = &id
	}
	if m.CurrentPlayerID != nil {
		id := *m.CurrentPlayerID
		m.CurrentPlayerID = &id
	}
	if m.LastTurn != nil {
		t := *m.LastTurn
		m.LastTurn = &t
	}
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		m.CompletedAt = &t
	}
	return m
}

// Store is the in-memory implementation of store.Store.
type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

// WithTx runs fn against the live state under the store lock. On error the
// pre-transaction snapshot is restored, so partial mutations never leak.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := s.st.clone()
	if err := fn(&tx{st: s.st}); err != nil {
		s.st = snap
		return err
	}
	return nil
}

type tx struct {
	st *state
}

func (t *tx) Users() store.UserRepo       { return (*userRepo)(t) }
func (t *tx) Lobbies() store.LobbyRepo    { return (*lobbyRepo)(t) }
func (t *tx) Matches() store.MatchRepo    { return (*matchRepo)(t) }
func (t *tx) Queue() store.QueueRepo      { return (*queueRepo)(t) }
func (t *tx) Sessions() store.SessionRepo { return (*sessionRepo)(t) }
func (t *tx) Records() store.RecordRepo   { return (*recordRepo)(t) }

// users

type userRepo tx

func (r *userRepo) Get(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return nil, apperr.NotFound("user %s not found", id)
	}
	return &u, nil
}

func (r *userRepo) GetByExternalID(_ context.Context, externalID string) (*models.User, error) {
	for _, u := range r.st.users {
		if u.ExternalID == externalID {
			out := u
			return &out, nil
		}
	}
	return nil, apperr.NotFound("user with external id %s not found", externalID)
}

func (r *userRepo) Upsert(_ context.Context, u *models.User) error {
	r.st.users[u.ID] = *u
	return nil
}

func (r *userRepo) Stats(_ context.Context, id uuid.UUID) (*models.UserStats, error) {
	st, ok := r.st.stats[id]
	if !ok {
		return &models.UserStats{UserID: id}, nil
	}
	return &st, nil
}

func (r *userRepo) ApplyMatchOutcome(_ context.Context, id uuid.UUID, o models.MatchOutcome) error {
	st := r.st.stats[id]
	st.UserID = id
	st.TotalMatches++
	st.TotalScore += o.Score
	st.TotalWords += o.WordsFound
	if o.Score > st.BestScore {
		st.BestScore = o.Score
	}
	if o.Won {
		st.TotalWins++
		st.CurrentStreak++
		if st.CurrentStreak > st.BestStreak {
			st.BestStreak = st.CurrentStreak
		}
	} else {
		st.CurrentStreak = 0
	}
	r.st.stats[id] = st
	return nil
}

// lobbies

type lobbyRepo tx

func (r *lobbyRepo) Insert(_ context.Context, l *models.Lobby) error {
	if _, exists := r.st.lobbies[l.ID]; exists {
		return apperr.Conflict("lobby %s already exists", l.ID)
	}
	r.st.lobbies[l.ID] = cloneLobby(*l)
	return nil
}

func (r *lobbyRepo) Get(_ context.Context, id uuid.UUID) (*models.Lobby, error) {
	l, ok := r.st.lobbies[id]
	if !ok {
		return nil, apperr.NotFound("lobby %s not found", id)
	}
	out := cloneLobby(l)
	sortLobbyPlayers(&out)
	return &out, nil
}

func (r *lobbyRepo) GetByCode(_ context.Context, serverID, code string) (*models.Lobby, error) {
	for _, l := range r.st.lobbies {
		if l.ServerID == serverID && l.Code == code && l.Status != models.LobbyFinished {
			out := cloneLobby(l)
			sortLobbyPlayers(&out)
			return &out, nil
		}
	}
	return nil, apperr.NotFound("no active lobby with code %s", code)
}

func (r *lobbyRepo) CodeInUse(_ context.Context, code string) (bool, error) {
	for _, l := range r.st.lobbies {
		if l.Code == code && l.Status != models.LobbyFinished {
			return true, nil
		}
	}
	return false, nil
}

func (r *lobbyRepo) Update(_ context.Context, l *models.Lobby) error {
	cur, ok := r.st.lobbies[l.ID]
	if !ok {
		return apperr.NotFound("lobby %s not found", l.ID)
	}
	cur.Code = l.Code
	cur.HostID = l.HostID
	cur.Status = l.Status
	cur.MaxPlayers = l.MaxPlayers
	cur.UpdatedAt = l.UpdatedAt
	r.st.lobbies[l.ID] = cur
	return nil
}

func (r *lobbyRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.st.lobbies, id)
	return nil
}

func (r *lobbyRepo) AddPlayer(_ context.Context, lobbyID uuid.UUID, p models.LobbyPlayer) error {
	l, ok := r.st.lobbies[lobbyID]
	if !ok {
		return apperr.NotFound("lobby %s not found", lobbyID)
	}
	for i := range l.Players {
		if l.Players[i].UserID == p.UserID {
			return apperr.Conflict("user %s already seated in lobby %s", p.UserID, lobbyID)
		}
	}
	l.Players = append(l.Players, p)
	r.st.lobbies[lobbyID] = l
	return nil
}

func (r *lobbyRepo) UpdatePlayer(_ context.Context, lobbyID uuid.UUID, p models.LobbyPlayer) error {
	l, ok := r.st.lobbies[lobbyID]
	if !ok {
		return apperr.NotFound("lobby %s not found", lobbyID)
	}
	for i := range l.Players {
		if l.Players[i].UserID == p.UserID {
			l.Players[i] = p
			r.st.lobbies[lobbyID] = l
			return nil
		}
	}
	return apperr.NotFound("user %s not seated in lobby %s", p.UserID, lobbyID)
}

func (r *lobbyRepo) RemovePlayer(_ context.Context, lobbyID, userID uuid.UUID) error {
	l, ok := r.st.lobbies[lobbyID]
	if !ok {
		return apperr.NotFound("lobby %s not found", lobbyID)
	}
	for i := range l.Players {
		if l.Players[i].UserID == userID {
			l.Players = append(l.Players[:i], l.Players[i+1:]...)
			r.st.lobbies[lobbyID] = l
			return nil
		}
	}
	return nil
}

func (r *lobbyRepo) ListByMember(_ context.Context, userID uuid.UUID) ([]models.Lobby, error) {
	var out []models.Lobby
	for _, l := range r.st.lobbies {
		for i := range l.Players {
			if l.Players[i].UserID == userID {
				c := cloneLobby(l)
				sortLobbyPlayers(&c)
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (r *lobbyRepo) ListIdleWaiting(_ context.Context, cutoff time.Time) ([]models.Lobby, error) {
	var out []models.Lobby
	for _, l := range r.st.lobbies {
		if l.Status == models.LobbyWaiting && l.UpdatedAt.Before(cutoff) {
			c := cloneLobby(l)
			sortLobbyPlayers(&c)
			out = append(out, c)
		}
	}
	return out, nil
}

func sortLobbyPlayers(l *models.Lobby) {
	sort.SliceStable(l.Players, func(i, j int) bool {
		return l.Players[i].JoinedAt.Before(l.Players[j].JoinedAt)
	})
}

// matches

type matchRepo tx

func (r *matchRepo) Insert(_ context.Context, m *models.Match) error {
	if _, exists := r.st.matches[m.ID]; exists {
		return apperr.Conflict("match %s already exists", m.ID)
	}
	r.st.matches[m.ID] = cloneMatch(*m)
	return nil
}

func (r *matchRepo) Get(_ context.Context, id uuid.UUID) (*models.Match, error) {
	m, ok := r.st.matches[id]
	if !ok {
		return nil, apperr.NotFound("match %s not found", id)
	}
	out := cloneMatch(m)
	sortMatchPlayers(&out)
	return &out, nil
}

func (r *matchRepo) GetByLobby(_ context.Context, lobbyID uuid.UUID) (*models.Match, error) {
	for _, m := range r.st.matches {
		if m.LobbyID != nil && *m.LobbyID == lobbyID && m.Status == models.MatchInProgress {
			out := cloneMatch(m)
			sortMatchPlayers(&out)
			return &out, nil
		}
	}
	return nil, apperr.NotFound("no in-progress match for lobby %s", lobbyID)
}

func (r *matchRepo) Update(_ context.Context, m *models.Match) error {
	cur, ok := r.st.matches[m.ID]
	if !ok {
		return apperr.NotFound("match %s not found", m.ID)
	}
	players := cur.Players
	cur = cloneMatch(*m)
	cur.Players = players
	r.st.matches[m.ID] = cur
	return nil
}

func (r *matchRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.st.matches, id)
	return nil
}

func (r *matchRepo) UpsertPlayer(_ context.Context, matchID uuid.UUID, p models.MatchPlayer) error {
	m, ok := r.st.matches[matchID]
	if !ok {
		return apperr.NotFound("match %s not found", matchID)
	}
	for i := range m.Players {
		if m.Players[i].UserID == p.UserID {
			m.Players[i] = p
			r.st.matches[matchID] = m
			return nil
		}
	}
	m.Players = append(m.Players, p)
	r.st.matches[matchID] = m
	return nil
}

func (r *matchRepo) RemovePlayer(_ context.Context, matchID, userID uuid.UUID) error {
	m, ok := r.st.matches[matchID]
	if !ok {
		return apperr.NotFound("match %s not found", matchID)
	}
	for i := range m.Players {
		if m.Players[i].UserID == userID {
			m.Players = append(m.Players[:i], m.Players[i+1:]...)
			r.st.matches[matchID] = m
			return nil
		}
	}
	return nil
}

func (r *matchRepo) ReplacePlayers(_ context.Context, matchID uuid.UUID, players []models.MatchPlayer) error {
	m, ok := r.st.matches[matchID]
	if !ok {
		return apperr.NotFound("match %s not found", matchID)
	}
	m.Players = nil
	for _, p := range players {
		m.Players = append(m.Players, p)
	}
	r.st.matches[matchID] = m
	return nil
}

func sortMatchPlayers(m *models.Match) {
	sort.SliceStable(m.Players, func(i, j int) bool {
		return m.Players[i].TurnOrder < m.Players[j].TurnOrder
	})
}

// queue

type queueRepo tx

func (r *queueRepo) Upsert(_ context.Context, e models.MatchmakingEntry) error {
	r.st.queue[e.UserID] = e
	return nil
}

func (r *queueRepo) Get(_ context.Context, userID uuid.UUID) (*models.MatchmakingEntry, error) {
	e, ok := r.st.queue[userID]
	if !ok {
		return nil, apperr.NotFound("user %s not in matchmaking queue", userID)
	}
	return &e, nil
}

func (r *queueRepo) Delete(_ context.Context, userID uuid.UUID) error {
	delete(r.st.queue, userID)
	return nil
}

func (r *queueRepo) ListByServer(_ context.Context, serverID string) ([]models.MatchmakingEntry, error) {
	var out []models.MatchmakingEntry
	for _, e := range r.st.queue {
		if e.ServerID == serverID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

// sessions

type sessionRepo tx

func (r *sessionRepo) Upsert(_ context.Context, s *models.Session) error {
	r.st.sessions[s.ID] = *s
	return nil
}

func (r *sessionRepo) GetActiveByUser(_ context.Context, userID uuid.UUID) (*models.Session, error) {
	for _, s := range r.st.sessions {
		if s.UserID == userID && s.Status == models.SessionActive {
			out := s
			return &out, nil
		}
	}
	return nil, apperr.NotFound("no active session for user %s", userID)
}

func (r *sessionRepo) Touch(_ context.Context, userID uuid.UUID, at time.Time) error {
	for id, s := range r.st.sessions {
		if s.UserID == userID && s.Status == models.SessionActive {
			s.LastSeenAt = at
			r.st.sessions[id] = s
		}
	}
	return nil
}

func (r *sessionRepo) CompleteByUser(_ context.Context, userID uuid.UUID, at time.Time) ([]models.Session, error) {
	var out []models.Session
	for id, s := range r.st.sessions {
		if s.UserID == userID && s.Status == models.SessionActive {
			s.Status = models.SessionCompleted
			s.LastSeenAt = at
			r.st.sessions[id] = s
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *sessionRepo) Complete(_ context.Context, id uuid.UUID, at time.Time) error {
	s, ok := r.st.sessions[id]
	if !ok {
		return apperr.NotFound("session %s not found", id)
	}
	s.Status = models.SessionCompleted
	s.LastSeenAt = at
	r.st.sessions[id] = s
	return nil
}

func (r *sessionRepo) ListStale(_ context.Context, cutoff time.Time) ([]models.Session, error) {
	var out []models.Session
	for _, s := range r.st.sessions {
		if s.Status == models.SessionActive && s.LastSeenAt.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

// records

type recordRepo tx

func (r *recordRepo) Get(_ context.Context, serverID string) (*models.ServerRecord, error) {
	rec, ok := r.st.records[serverID]
	if !ok {
		return nil, apperr.NotFound("no record for server %s", serverID)
	}
	return &rec, nil
}

func (r *recordRepo) Upsert(_ context.Context, rec *models.ServerRecord) error {
	r.st.records[rec.ServerID] = *rec
	return nil
}
