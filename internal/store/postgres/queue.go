// internal/store/postgres/queue.go
package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wordhex/wordhex/internal/apperr"
	"github.com/wordhex/wordhex/internal/models"
)

type queueRepo struct {
	q pgx.Tx
}

func (r *queueRepo) Upsert(ctx context.Context, e models.MatchmakingEntry) error {
	q := `
	INSERT INTO matchmaking_queue (user_id, username, server_id, joined_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_id) DO UPDATE SET
		username = EXCLUDED.username,
		server_id = EXCLUDED.server_id,
		joined_at = EXCLUDED.joined_at
	`
	_, err := r.q.Exec(ctx, q, e.UserID, e.Username, e.ServerID, e.JoinedAt)
	return err
}

func (r *queueRepo) Get(ctx context.Context, userID uuid.UUID) (*models.MatchmakingEntry, error) {
	var e models.MatchmakingEntry
	q := `SELECT user_id, username, server_id, joined_at FROM matchmaking_queue WHERE user_id = $1`
	err := r.q.QueryRow(ctx, q, userID).Scan(&e.UserID, &e.Username, &e.ServerID, &e.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user %s not in matchmaking queue", userID)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *queueRepo) Delete(ctx context.Context, userID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `DELETE FROM matchmaking_queue WHERE user_id = $1`, userID)
	return err
}

func (r *queueRepo) ListByServer(ctx context.Context, serverID string) ([]models.MatchmakingEntry, error) {
	// FOR UPDATE keeps two concurrent pairing checks from both dequeuing
	// the same pair.
	q := `
	SELECT user_id, username, server_id, joined_at
	FROM matchmaking_queue
	WHERE server_id = $1
	ORDER BY joined_at ASC
	FOR UPDATE
	`
	rows, err := r.q.Query(ctx, q, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.MatchmakingEntry
	for rows.Next() {
		var e models.MatchmakingEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.ServerID, &e.JoinedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
