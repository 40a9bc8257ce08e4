// internal/handlers/matchmaking.go
package handlers

import (
	"net/http"

	"github.com/wordhex/wordhex/internal/matchmaking"
)

// JoinMatchmakingHandler enqueues the caller; may return an immediate pairing.
func JoinMatchmakingHandler(queue *matchmaking.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		userID, username, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}

		var req struct {
			ServerID string `json:"server_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}

		res, err := queue.Join(r.Context(), userID, username, req.ServerID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// LeaveMatchmakingHandler dequeues the caller. Absent entries are a no-op.
func LeaveMatchmakingHandler(queue *matchmaking.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		userID, _, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}

		if err := queue.Leave(r.Context(), userID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}
