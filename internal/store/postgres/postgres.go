// internal/store/postgres/postgres.go
package postgres

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wordhex/wordhex/internal/store"
)

// Store is the pgx-backed store.Store. Every WithTx call maps to one
// database transaction; the row-level locking of the read-modify-write
// statements inside serializes conflicting mutations.
type Store struct {
	pool *pgxpool.Pool
}

// Connect builds a pool from the POSTGRES_* / PG_* environment variables
// and pings it.
func Connect(ctx context.Context) (*Store, error) {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		connStr = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("POSTGRES_USER"),
			os.Getenv("POSTGRES_PASSWORD"),
			os.Getenv("PG_HOST"),
			os.Getenv("PG_PORT"),
			os.Getenv("PG_DATABASE"),
		)
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}

// WithTx runs fn inside a single database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(pgtx pgx.Tx) error {
		return fn(&tx{q: pgtx})
	})
}

type tx struct {
	q pgx.Tx
}

func (t *tx) Users() store.UserRepo       { return &userRepo{q: t.q} }
func (t *tx) Lobbies() store.LobbyRepo    { return &lobbyRepo{q: t.q} }
func (t *tx) Matches() store.MatchRepo    { return &matchRepo{q: t.q} }
func (t *tx) Queue() store.QueueRepo      { return &queueRepo{q: t.q} }
func (t *tx) Sessions() store.SessionRepo { return &sessionRepo{q: t.q} }
func (t *tx) Records() store.RecordRepo   { return &recordRepo{q: t.q} }
