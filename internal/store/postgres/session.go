// internal/store/postgres/session.go
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

type sessionRepo struct {
	q pgx.Tx
}

const sessionColumns = `id, user_id, username, server_id, match_id, status, started_at, last_seen_at`

func (r *sessionRepo) Upsert(ctx context.Context, s *models.Session) error {
	q := `
	INSERT INTO sessions (` + sessionColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		username = EXCLUDED.username,
		match_id = EXCLUDED.match_id,
		status = EXCLUDED.status,
		last_seen_at = EXCLUDED.last_seen_at
	`
	_, err := r.q.Exec(ctx, q,
		s.ID, s.UserID, s.Username, s.ServerID, s.MatchID, s.Status, s.StartedAt, s.LastSeenAt,
	)
	return err
}

func (r *sessionRepo) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*models.Session, error) {
	q := `
	SELECT ` + sessionColumns + `
	FROM sessions
	WHERE user_id = $1 AND status = 'active'
	ORDER BY started_at DESC
	LIMIT 1
	`
	var s models.Session
	err := r.q.QueryRow(ctx, q, userID).Scan(
		&s.ID, &s.UserID, &s.Username, &s.ServerID, &s.MatchID, &s.Status, &s.StartedAt, &s.LastSeenAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("no active session for user %s", userID)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) Touch(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := r.q.Exec(ctx,
		`UPDATE sessions SET last_seen_at = $2 WHERE user_id = $1 AND status = 'active'`,
		userID, at,
	)
	return err
}

func (r *sessionRepo) CompleteByUser(ctx context.Context, userID uuid.UUID, at time.Time) ([]models.Session, error) {
	q := `
	UPDATE sessions
	SET status = 'completed', last_seen_at = $2
	WHERE user_id = $1 AND status = 'active'
	RETURNING ` + sessionColumns
	rows, err := r.q.Query(ctx, q, userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (r *sessionRepo) Complete(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE sessions SET status = 'completed', last_seen_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("session %s not found", id)
	}
	return nil
}

func (r *sessionRepo) ListStale(ctx context.Context, cutoff time.Time) ([]models.Session, error) {
	q := `
	SELECT ` + sessionColumns + `
	FROM sessions
	WHERE status = 'active' AND last_seen_at < $1
	FOR UPDATE SKIP LOCKED
	`
	rows, err := r.q.Query(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows pgx.Rows) ([]models.Session, error) {
	var out []models.Session
	for rows.Next() {
		var s models.Session
		err := rows.Scan(
			&s.ID, &s.UserID, &s.Username, &s.ServerID, &s.MatchID, &s.Status, &s.StartedAt, &s.LastSeenAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type recordRepo struct {
	q pgx.Tx
}

func (r *recordRepo) Get(ctx context.Context, serverID string) (*models.ServerRecord, error) {
	var rec models.ServerRecord
	q := `
	SELECT server_id, user_id, username, score, achieved_at
	FROM server_records
	WHERE server_id = $1
	FOR UPDATE
	`
	err := r.q.QueryRow(ctx, q, serverID).Scan(
		&rec.ServerID, &rec.UserID, &rec.Username, &rec.Score, &rec.AchievedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("no record for server %s", serverID)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepo) Upsert(ctx context.Context, rec *models.ServerRecord) error {
	q := `
	INSERT INTO server_records (server_id, user_id, username, score, achieved_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (server_id) DO UPDATE SET
		user_id = EXCLUDED.user_id,
		username = EXCLUDED.username,
		score = EXCLUDED.score,
		achieved_at = EXCLUDED.achieved_at
	`
	_, err := r.q.Exec(ctx, q, rec.ServerID, rec.UserID, rec.Username, rec.Score, rec.AchievedAt)
	return err
}
