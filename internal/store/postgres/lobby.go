// internal/store/postgres/lobby.go
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wordhex/wordhex/internal/apperr"
	"github.com/wordhex/wordhex/internal/models"
)

type lobbyRepo struct {
	q pgx.Tx
}

const lobbyColumns = `id, code, server_id, host_id, status, max_players, created_at, updated_at`

func (r *lobbyRepo) Insert(ctx context.Context, l *models.Lobby) error {
	q := `
	INSERT INTO lobbies (` + lobbyColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.q.Exec(ctx, q,
		l.ID, l.Code, l.ServerID, l.HostID, l.Status, l.MaxPlayers, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return err
	}
	for _, p := range l.Players {
		if err := r.AddPlayer(ctx, l.ID, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *lobbyRepo) scanLobby(ctx context.Context, row pgx.Row) (*models.Lobby, error) {
	var l models.Lobby
	err := row.Scan(
		&l.ID, &l.Code, &l.ServerID, &l.HostID, &l.Status, &l.MaxPlayers, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("lobby not found")
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadPlayers(ctx, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *lobbyRepo) loadPlayers(ctx context.Context, l *models.Lobby) error {
	q := `
	SELECT user_id, username, ready, is_host, joined_at
	FROM lobby_players
	WHERE lobby_id = $1
	ORDER BY joined_at ASC
	`
	rows, err := r.q.Query(ctx, q, l.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	l.Players = nil
	for rows.Next() {
		var p models.LobbyPlayer
		if err := rows.Scan(&p.UserID, &p.Username, &p.Ready, &p.IsHost, &p.JoinedAt); err != nil {
			return err
		}
		l.Players = append(l.Players, p)
	}
	return rows.Err()
}

func (r *lobbyRepo) Get(ctx context.Context, id uuid.UUID) (*models.Lobby, error) {
	// FOR UPDATE serializes concurrent read-modify-write on the same lobby.
	q := `SELECT ` + lobbyColumns + ` FROM lobbies WHERE id = $1 FOR UPDATE`
	return r.scanLobby(ctx, r.q.QueryRow(ctx, q, id))
}

func (r *lobbyRepo) GetByCode(ctx context.Context, serverID, code string) (*models.Lobby, error) {
	q := `
	SELECT ` + lobbyColumns + `
	FROM lobbies
	WHERE server_id = $1 AND code = $2 AND status <> 'finished'
	FOR UPDATE
	`
	return r.scanLobby(ctx, r.q.QueryRow(ctx, q, serverID, code))
}

func (r *lobbyRepo) CodeInUse(ctx context.Context, code string) (bool, error) {
	q := `SELECT 1 FROM lobbies WHERE code = $1 AND status <> 'finished' LIMIT 1`
	var tmp int
	err := r.q.QueryRow(ctx, q, code).Scan(&tmp)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *lobbyRepo) Update(ctx context.Context, l *models.Lobby) error {
	q := `
	UPDATE lobbies
	SET code = $2, host_id = $3, status = $4, max_players = $5, updated_at = $6
	WHERE id = $1
	`
	tag, err := r.q.Exec(ctx, q, l.ID, l.Code, l.HostID, l.Status, l.MaxPlayers, l.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lobby %s not found", l.ID)
	}
	return nil
}

func (r *lobbyRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM lobby_players WHERE lobby_id = $1`, id); err != nil {
		return err
	}
	_, err := r.q.Exec(ctx, `DELETE FROM lobbies WHERE id = $1`, id)
	return err
}

func (r *lobbyRepo) AddPlayer(ctx context.Context, lobbyID uuid.UUID, p models.LobbyPlayer) error {
	q := `
	INSERT INTO lobby_players (lobby_id, user_id, username, ready, is_host, joined_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.q.Exec(ctx, q, lobbyID, p.UserID, p.Username, p.Ready, p.IsHost, p.JoinedAt)
	return err
}

func (r *lobbyRepo) UpdatePlayer(ctx context.Context, lobbyID uuid.UUID, p models.LobbyPlayer) error {
	q := `
	UPDATE lobby_players
	SET username = $3, ready = $4, is_host = $5
	WHERE lobby_id = $1 AND user_id = $2
	`
	tag, err := r.q.Exec(ctx, q, lobbyID, p.UserID, p.Username, p.Ready, p.IsHost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user %s not seated in lobby %s", p.UserID, lobbyID)
	}
	return nil
}

func (r *lobbyRepo) RemovePlayer(ctx context.Context, lobbyID, userID uuid.UUID) error {
	_, err := r.q.Exec(ctx,
		`DELETE FROM lobby_players WHERE lobby_id = $1 AND user_id = $2`, lobbyID, userID)
	return err
}

func (r *lobbyRepo) ListByMember(ctx context.Context, userID uuid.UUID) ([]models.Lobby, error) {
	q := `
	SELECT l.id, l.code, l.server_id, l.host_id, l.status, l.max_players, l.created_at, l.updated_at
	FROM lobbies l
	JOIN lobby_players p ON p.lobby_id = l.id
	WHERE p.user_id = $1
	`
	return r.listLobbies(ctx, q, userID)
}

func (r *lobbyRepo) ListIdleWaiting(ctx context.Context, cutoff time.Time) ([]models.Lobby, error) {
	q := `
	SELECT ` + lobbyColumns + `
	FROM lobbies
	WHERE status = 'waiting' AND updated_at < $1
	FOR UPDATE SKIP LOCKED
	`
	return r.listLobbies(ctx, q, cutoff)
}

func (r *lobbyRepo) listLobbies(ctx context.Context, q string, args ...interface{}) ([]models.Lobby, error) {
	rows, err := r.q.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lobbies []models.Lobby
	for rows.Next() {
		var l models.Lobby
		err := rows.Scan(
			&l.ID, &l.Code, &l.ServerID, &l.HostID, &l.Status, &l.MaxPlayers, &l.CreatedAt, &l.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		lobbies = append(lobbies, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range lobbies {
		if err := r.loadPlayers(ctx, &lobbies[i]); err != nil {
			return nil, err
		}
	}
	return lobbies, nil
}
