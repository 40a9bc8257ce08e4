// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list completed matches are journaled to for
// the out-of-process history consumer.
var DefaultQueueName = "wordhex_match_history"

// MatchRecord is the compact completed-match record pushed to the journal.
type MatchRecord struct {
	MatchID     uuid.UUID      `json:"match_id"`
	ServerID    string         `json:"server_id"`
	WordsFound  int            `json:"words_found"`
	CompletedAt int64          `json:"completed_at"`
	Players     []PlayerRecord `json:"players"`
}

// PlayerRecord is one player's line in a MatchRecord.
type PlayerRecord struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Score    int       `json:"score"`
	Words    int       `json:"words"`
	Rank     int       `json:"rank"`
}

// Journal is a best-effort Redis export of finished matches. Failures are
// the caller's to log; they must never fail the finalizing command.
type Journal struct {
	rdb   *redis.Client
	queue string
}

// Connect initializes the journal from environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
//   - HISTORY_QUEUE_NAME (optional)
func Connect(ctx context.Context) (*Journal, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Journal{
		rdb:   rdb,
		queue: getEnv("HISTORY_QUEUE_NAME", DefaultQueueName),
	}, nil
}

// PushMatchRecord serializes the record to JSON and appends it to the
// journal list.
func (j *Journal) PushMatchRecord(ctx context.Context, rec MatchRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal MatchRecord: %w", err)
	}
	if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", j.queue, err)
	}
	return nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
