// internal/store/postgres/match.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wordhex/wordhex/internal/apperr"
	"github.com/wordhex/wordhex/internal/models"
)

type matchRepo struct {
	q pgx.Tx
}

const matchColumns = `id, lobby_id, server_id, status, grid_data, words_found,
	current_player_id, round_number, last_turn, created_at, completed_at`

func (r *matchRepo) Insert(ctx context.Context, m *models.Match) error {
	lastTurn, err := marshalTurn(m.LastTurn)
	if err != nil {
		return err
	}
	q := `
	INSERT INTO matches (` + matchColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.q.Exec(ctx, q,
		m.ID, m.LobbyID, m.ServerID, m.Status, m.GridData, m.WordsFound,
		m.CurrentPlayerID, m.RoundNumber, lastTurn, m.CreatedAt, m.CompletedAt,
	)
	if err != nil {
		return err
	}
	for _, p := range m.Players {
		if err := r.UpsertPlayer(ctx, m.ID, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *matchRepo) scanMatch(ctx context.Context, row pgx.Row) (*models.Match, error) {
	var m models.Match
	var lastTurn []byte
	err := row.Scan(
		&m.ID, &m.LobbyID, &m.ServerID, &m.Status, &m.GridData, &m.WordsFound,
		&m.CurrentPlayerID, &m.RoundNumber, &lastTurn, &m.CreatedAt, &m.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("match not found")
	}
	if err != nil {
		return nil, err
	}
	if len(lastTurn) > 0 {
		var t models.TurnRecord
		if err := json.Unmarshal(lastTurn, &t); err != nil {
			return nil, err
		}
		m.LastTurn = &t
	}
	if err := r.loadPlayers(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *matchRepo) loadPlayers(ctx context.Context, m *models.Match) error {
	q := `
	SELECT user_id, username, score, words_found, rounds_played, rank, turn_order
	FROM match_players
	WHERE match_id = $1
	ORDER BY turn_order ASC
	`
	rows, err := r.q.Query(ctx, q, m.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	m.Players = nil
	for rows.Next() {
		var p models.MatchPlayer
		if err := rows.Scan(&p.UserID, &p.Username, &p.Score, &p.WordsFound, &p.RoundsPlayed, &p.Rank, &p.TurnOrder); err != nil {
			return err
		}
		m.Players = append(m.Players, p)
	}
	return rows.Err()
}

func (r *matchRepo) Get(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	q := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1 FOR UPDATE`
	return r.scanMatch(ctx, r.q.QueryRow(ctx, q, id))
}

func (r *matchRepo) GetByLobby(ctx context.Context, lobbyID uuid.UUID) (*models.Match, error) {
	q := `
	SELECT ` + matchColumns + `
	FROM matches
	WHERE lobby_id = $1 AND status = 'in_progress'
	FOR UPDATE
	`
	return r.scanMatch(ctx, r.q.QueryRow(ctx, q, lobbyID))
}

func (r *matchRepo) Update(ctx context.Context, m *models.Match) error {
	lastTurn, err := marshalTurn(m.LastTurn)
	if err != nil {
		return err
	}
	q := `
	UPDATE matches
	SET lobby_id = $2, status = $3, grid_data = $4, words_found = $5,
	    current_player_id = $6, round_number = $7, last_turn = $8, completed_at = $9
	WHERE id = $1
	`
	tag, err := r.q.Exec(ctx, q,
		m.ID, m.LobbyID, m.Status, m.GridData, m.WordsFound,
		m.CurrentPlayerID, m.RoundNumber, lastTurn, m.CompletedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("match %s not found", m.ID)
	}
	return nil
}

func (r *matchRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM match_players WHERE match_id = $1`, id); err != nil {
		return err
	}
	_, err := r.q.Exec(ctx, `DELETE FROM matches WHERE id = $1`, id)
	return err
}

func (r *matchRepo) UpsertPlayer(ctx context.Context, matchID uuid.UUID, p models.MatchPlayer) error {
	q := `
	INSERT INTO match_players (match_id, user_id, username, score, words_found, rounds_played, rank, turn_order)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (match_id, user_id) DO UPDATE SET
		username = EXCLUDED.username,
		score = EXCLUDED.score,
		words_found = EXCLUDED.words_found,
		rounds_played = EXCLUDED.rounds_played,
		rank = EXCLUDED.rank,
		turn_order = EXCLUDED.turn_order
	`
	_, err := r.q.Exec(ctx, q,
		matchID, p.UserID, p.Username, p.Score, p.WordsFound, p.RoundsPlayed, p.Rank, p.TurnOrder,
	)
	return err
}

func (r *matchRepo) RemovePlayer(ctx context.Context, matchID, userID uuid.UUID) error {
	_, err := r.q.Exec(ctx,
		`DELETE FROM match_players WHERE match_id = $1 AND user_id = $2`, matchID, userID)
	return err
}

func (r *matchRepo) ReplacePlayers(ctx context.Context, matchID uuid.UUID, players []models.MatchPlayer) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM match_players WHERE match_id = $1`, matchID); err != nil {
		return err
	}
	for _, p := range players {
		if err := r.UpsertPlayer(ctx, matchID, p); err != nil {
			return err
		}
	}
	return nil
}

func marshalTurn(t *models.TurnRecord) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}
