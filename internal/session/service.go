// internal/session/service.go
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wordhex/wordhex/internal/apperr"
	"github.com/wordhex/wordhex/internal/events"
	"github.com/wordhex/wordhex/internal/models"
	"github.com/wordhex/wordhex/internal/store"
)

// DefaultStaleTimeout is how long an active session may go untouched
// before the sweep reclaims it.
const DefaultStaleTimeout = 10 * time.Minute

// Service tracks play sessions: begun on identify, refreshed by match
// progress, completed on leave or reclaimed by the stale sweep.
type Service struct {
	store      store.Store
	bus        *events.Bus
	log        *logrus.Logger
	staleAfter time.Duration
}

func NewService(st store.Store, bus *events.Bus, log *logrus.Logger) *Service {
	return &Service{store: st, bus: bus, log: log, staleAfter: DefaultStaleTimeout}
}

// SetStaleTimeout overrides the reclamation window.
func (s *Service) SetStaleTimeout(d time.Duration) {
	s.staleAfter = d
}

// Begin refreshes the user's active session, creating one if none exists.
func (s *Service) Begin(ctx context.Context, userID uuid.UUID, username, serverID string) (*models.Session, error) {
	var sess *models.Session
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		now := time.Now().UTC()
		existing, err := tx.Sessions().GetActiveByUser(ctx, userID)
		if err == nil {
			existing.Username = username
			existing.LastSeenAt = now
			sess = existing
			return tx.Sessions().Upsert(ctx, existing)
		}
		if !apperr.Is(err, apperr.CodeNotFound) {
			return err
		}
		sess = &models.Session{
			ID:         uuid.New(),
			UserID:     userID,
			Username:   username,
			ServerID:   serverID,
			Status:     models.SessionActive,
			StartedAt:  now,
			LastSeenAt: now,
		}
		return tx.Sessions().Upsert(ctx, sess)
	})
	if err != nil {
		return nil, err
	}
	s.publish(*sess)
	return sess, nil
}

// AttachMatch points the user's active session at a match.
func (s *Service) AttachMatch(ctx context.Context, userID, matchID uuid.UUID) error {
	var sess *models.Session
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		existing, err := tx.Sessions().GetActiveByUser(ctx, userID)
		if apperr.Is(err, apperr.CodeNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existing.MatchID = &matchID
		existing.LastSeenAt = time.Now().UTC()
		sess = existing
		return tx.Sessions().Upsert(ctx, existing)
	})
	if err != nil {
		return err
	}
	if sess != nil {
		s.publish(*sess)
	}
	return nil
}

// RunSweeper completes sessions whose owners went quiet. Blocks until ctx
// is cancelled; failures are logged and the loop continues.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweepStale(ctx); err != nil {
				s.log.Errorf("stale session sweep failed: %v", err)
			}
		}
	}
}

func (s *Service) sweepStale(ctx context.Context) error {
	var reclaimed []models.Session
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		reclaimed = reclaimed[:0]
		now := time.Now().UTC()
		stale, err := tx.Sessions().ListStale(ctx, now.Add(-s.staleAfter))
		if err != nil {
			return err
		}
		for _, sess := range stale {
			if err := tx.Sessions().Complete(ctx, sess.ID, now); err != nil {
				return err
			}
			sess.Status = models.SessionCompleted
			sess.LastSeenAt = now
			reclaimed = append(reclaimed, sess)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, sess := range reclaimed {
		s.log.Infof("reclaimed stale session %s (user %s)", sess.ID, sess.UserID)
		s.publish(sess)
	}
	return nil
}

func (s *Service) publish(sess models.Session) {
	s.bus.Publish(events.Event{
		Type:     events.SessionUpdated,
		ServerID: sess.ServerID,
		UserID:   sess.UserID,
		Payload:  map[string]interface{}{"session": sess},
	})
}
