// internal/handlers/user.go
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wordhex/wordhex/internal/apperr"
	"github.com/wordhex/wordhex/internal/auth"
	"github.com/wordhex/wordhex/internal/models"
	"github.com/wordhex/wordhex/internal/store"
)

// TokenHandler exchanges an external identity for a signed session token,
// upserting the user row so renames and avatar changes stick.
func TokenHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}

		var req struct {
			ExternalID string `json:"external_id"`
			Username   string `json:"username"`
			AvatarURL  string `json:"avatar_url"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		req.ExternalID = strings.TrimSpace(req.ExternalID)
		req.Username = strings.TrimSpace(req.Username)
		if req.ExternalID == "" || req.Username == "" {
			writeError(w, apperr.InvalidArgument("external_id and username required"))
			return
		}

		var user *models.User
		err := st.WithTx(r.Context(), func(tx store.Tx) error {
			existing, err := tx.Users().GetByExternalID(r.Context(), req.ExternalID)
			switch {
			case err == nil:
				user = existing
			case apperr.Is(err, apperr.CodeNotFound):
				user = &models.User{
					ID:         uuid.New(),
					ExternalID: req.ExternalID,
					CreatedAt:  time.Now(),
				}
			default:
				return err
			}
			user.Username = req.Username
			user.AvatarURL = req.AvatarURL
			return tx.Users().Upsert(r.Context(), user)
		})
		if err != nil {
			writeError(w, err)
			return
		}

		token, err := auth.CreateToken(user.ID, user.Username)
		if err != nil {
			writeError(w, apperr.Internal("token creation failed"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token": token,
			"user":  user,
		})
	}
}

// MeHandler returns the caller's profile and stats aggregate.
func MeHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}

		var user *models.User
		var stats *models.UserStats
		err = st.WithTx(r.Context(), func(tx store.Tx) error {
			user, err = tx.Users().Get(r.Context(), userID)
			if err != nil {
				return err
			}
			stats, err = tx.Users().Stats(r.Context(), userID)
			return err
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"user":  user,
			"stats": stats,
		})
	}
}

// StatsHandler returns another player's public stats by id.
func StatsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := requireUser(r); err != nil {
			writeError(w, err)
			return
		}

		idStr := r.URL.Query().Get("user_id")
		userID, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, apperr.InvalidArgument("invalid user id"))
			return
		}

		var stats *models.UserStats
		err = st.WithTx(r.Context(), func(tx store.Tx) error {
			var err error
			stats, err = tx.Users().Stats(r.Context(), userID)
			return err
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
