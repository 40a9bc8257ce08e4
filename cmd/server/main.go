// cmd/server/main.go
package main

import (
	"context"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/wordhex/wordhex/internal/auth"
	"github.com/wordhex/wordhex/internal/cache"
	"github.com/wordhex/wordhex/internal/events"
	"github.com/wordhex/wordhex/internal/grid"
	"github.com/wordhex/wordhex/internal/handlers"
	"github.com/wordhex/wordhex/internal/lobby"
	"github.com/wordhex/wordhex/internal/match"
	"github.com/wordhex/wordhex/internal/matchmaking"
	"github.com/wordhex/wordhex/internal/middleware"
	"github.com/wordhex/wordhex/internal/session"
	"github.com/wordhex/wordhex/internal/store"
	"github.com/wordhex/wordhex/internal/store/memstore"
	"github.com/wordhex/wordhex/internal/store/postgres"
	"github.com/wordhex/wordhex/internal/ws"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	if err := auth.Init(); err != nil {
		log.Fatalf("auth init: %v", err)
	}

	ctx := context.Background()

	var st store.Store
	pg, err := postgres.Connect(ctx)
	if err != nil {
		logger.Warnf("postgres unavailable, using in-memory store: %v", err)
		st = memstore.New()
	} else {
		defer pg.Close()
		st = pg
	}

	bus := events.New()
	grids := grid.NewGenerator(rand.NewSource(time.Now().UnixNano()))

	engine := match.NewEngine(st, bus, logger)
	if journal, err := cache.Connect(ctx); err != nil {
		logger.Warnf("redis unavailable, match history export disabled: %v", err)
	} else {
		engine.SetJournal(journal)
	}

	lobbies := lobby.NewManager(st, bus, engine, grids, logger)
	if d := envDuration(logger, "LOBBY_IDLE_TIMEOUT"); d > 0 {
		lobbies.SetIdleTimeout(d)
	}
	queue := matchmaking.NewQueue(st, bus, lobbies, logger)
	sessions := session.NewService(st, bus, logger)
	if d := envDuration(logger, "SESSION_STALE_TIMEOUT"); d > 0 {
		sessions.SetStaleTimeout(d)
	}

	registry := ws.NewRegistry(envDuration(logger, "RECONNECT_GRACE"), logger)
	registry.SetOnDeparted(func(ctx context.Context, userID uuid.UUID) {
		lobbies.DepartAll(ctx, userID)
		if err := queue.Leave(ctx, userID); err != nil {
			logger.Warnf("dequeue departed user %s: %v", userID, err)
		}
	})
	ws.NewBroadcaster(registry, logger).Attach(bus)

	go lobbies.RunSweeper(ctx, time.Minute)
	go sessions.RunSweeper(ctx, time.Minute)

	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(logger)

	// auth + profile endpoints
	mux.Handle("/api/auth/token", logged(handlers.TokenHandler(st)))
	mux.Handle("/api/users/me", logged(handlers.MeHandler(st)))
	mux.Handle("/api/users/stats", logged(handlers.StatsHandler(st)))

	// lobby endpoints
	mux.Handle("/api/lobbies/create", logged(handlers.CreateLobbyHandler(lobbies)))
	mux.Handle("/api/lobbies/join", logged(handlers.JoinLobbyHandler(lobbies)))
	mux.Handle("/api/lobbies/ready", logged(handlers.ReadyHandler(lobbies)))
	mux.Handle("/api/lobbies/leave", logged(handlers.LeaveLobbyHandler(lobbies)))
	mux.Handle("/api/lobbies/kick", logged(handlers.KickHandler(lobbies)))
	mux.Handle("/api/lobbies/start", logged(handlers.StartLobbyHandler(lobbies)))

	// matchmaking endpoints
	mux.Handle("/api/matchmaking/join", logged(handlers.JoinMatchmakingHandler(queue)))
	mux.Handle("/api/matchmaking/leave", logged(handlers.LeaveMatchmakingHandler(queue)))

	// match endpoints
	mux.Handle("/api/matches/progress", logged(handlers.UpdateMatchProgressHandler(engine)))
	mux.Handle("/api/matches/results", logged(handlers.RecordMatchResultsHandler(engine)))

	// realtime websocket
	mux.Handle("/ws", logged(ws.Handler(logger, registry, sessions)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// envDuration reads a Go duration from the environment; unset or malformed
// values return 0 so the component's default applies.
func envDuration(logger *logrus.Logger, key string) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		logger.Warnf("ignoring malformed %s %q: %v", key, s, err)
		return 0
	}
	return d
}
