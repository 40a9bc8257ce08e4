// internal/store/postgres/user.go
package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wordhex/wordhex/internal/apperr"
	"github.com/wordhex/wordhex/internal/models"
)

type userRepo struct {
	q pgx.Tx
}

func (r *userRepo) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	q := `
	SELECT id, external_id, username, avatar_url, created_at
	FROM users
	WHERE id = $1
	`
	err := r.q.QueryRow(ctx, q, id).Scan(
		&u.ID, &u.ExternalID, &u.Username, &u.AvatarURL, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var u models.User
	q := `
	SELECT id, external_id, username, avatar_url, created_at
	FROM users
	WHERE external_id = $1
	`
	err := r.q.QueryRow(ctx, q, externalID).Scan(
		&u.ID, &u.ExternalID, &u.Username, &u.AvatarURL, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user with external id %s not found", externalID)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) Upsert(ctx context.Context, u *models.User) error {
	q := `
	INSERT INTO users (id, external_id, username, avatar_url, created_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (external_id) DO UPDATE
	SET username = EXCLUDED.username, avatar_url = EXCLUDED.avatar_url
	`
	_, err := r.q.Exec(ctx, q, u.ID, u.ExternalID, u.Username, u.AvatarURL, u.CreatedAt)
	return err
}

func (r *userRepo) Stats(ctx context.Context, id uuid.UUID) (*models.UserStats, error) {
	var s models.UserStats
	q := `
	SELECT user_id, total_matches, total_wins, total_score, total_words,
	       best_score, current_streak, best_streak
	FROM user_stats
	WHERE user_id = $1
	`
	err := r.q.QueryRow(ctx, q, id).Scan(
		&s.UserID, &s.TotalMatches, &s.TotalWins, &s.TotalScore, &s.TotalWords,
		&s.BestScore, &s.CurrentStreak, &s.BestStreak,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.UserStats{UserID: id}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *userRepo) ApplyMatchOutcome(ctx context.Context, id uuid.UUID, o models.MatchOutcome) error {
	won := 0
	if o.Won {
		won = 1
	}
	q := `
	INSERT INTO user_stats (user_id, total_matches, total_wins, total_score, total_words,
	                        best_score, current_streak, best_streak)
	VALUES ($1, 1, $2, $3, $4, $3, $2, $2)
	ON CONFLICT (user_id) DO UPDATE SET
		total_matches  = user_stats.total_matches + 1,
		total_wins     = user_stats.total_wins + $2,
		total_score    = user_stats.total_score + $3,
		total_words    = user_stats.total_words + $4,
		best_score     = GREATEST(user_stats.best_score, $3),
		current_streak = CASE WHEN $2 = 1 THEN user_stats.current_streak + 1 ELSE 0 END,
		best_streak    = GREATEST(user_stats.best_streak,
		                          CASE WHEN $2 = 1 THEN user_stats.current_streak + 1 ELSE 0 END)
	`
	_, err := r.q.Exec(ctx, q, id, won, o.Score, o.WordsFound)
	return err
}
