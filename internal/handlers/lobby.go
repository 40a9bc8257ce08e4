// internal/handlers/lobby.go
package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/wordhex/wordhex/internal/apperr"
	"github.com/wordhex/wordhex/internal/lobby"
)

// CreateLobbyHandler opens a lobby with the caller as host.
func CreateLobbyHandler(lobbies *lobby.Manager) http.HandlerFunc {
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
			ServerID   string `json:"server_id"`
			MaxPlayers int    `json:"max_players"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}

		l, err := lobbies.CreateLobby(r.Context(), userID, username, req.ServerID, req.MaxPlayers)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// JoinLobbyHandler seats the caller, by lobby id or by 4-digit code.
func JoinLobbyHandler(lobbies *lobby.Manager) http.HandlerFunc {
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
			LobbyID  string `json:"lobby_id"`
			Code     string `json:"code"`
			ServerID string `json:"server_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}

		if req.Code != "" {
			l, err := lobbies.JoinLobbyByCode(r.Context(), req.ServerID, req.Code, userID, username)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, l)
			return
		}

		lobbyID, err := uuid.Parse(req.LobbyID)
		if err != nil {
			writeError(w, apperr.InvalidArgument("invalid lobby id"))
			return
		}
		l, err := lobbies.JoinLobby(r.Context(), lobbyID, userID, username)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// ReadyHandler flips the caller's ready flag.
func ReadyHandler(lobbies *lobby.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		userID, _, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}

		var req struct {
			LobbyID string `json:"lobby_id"`
			Ready   bool   `json:"ready"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		lobbyID, err := uuid.Parse(req.LobbyID)
		if err != nil {
			writeError(w, apperr.InvalidArgument("invalid lobby id"))
			return
		}

		l, err := lobbies.SetPlayerReady(r.Context(), lobbyID, userID, req.Ready)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// LeaveLobbyHandler removes the caller; safe to resend.
func LeaveLobbyHandler(lobbies *lobby.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		userID, _, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}

		var req struct {
			LobbyID string `json:"lobby_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		lobbyID, err := uuid.Parse(req.LobbyID)
		if err != nil {
			writeError(w, apperr.InvalidArgument("invalid lobby id"))
			return
		}

		if err := lobbies.LeaveLobby(r.Context(), lobbyID, userID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// KickHandler is the host-only removal of another player.
func KickHandler(lobbies *lobby.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		userID, _, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}

		var req struct {
			LobbyID string `json:"lobby_id"`
			UserID  string `json:"user_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		lobbyID, err := uuid.Parse(req.LobbyID)
		if err != nil {
			writeError(w, apperr.InvalidArgument("invalid lobby id"))
			return
		}
		targetID, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, apperr.InvalidArgument("invalid user id"))
			return
		}

		if err := lobbies.RemoveLobbyPlayer(r.Context(), lobbyID, targetID, userID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// StartLobbyHandler begins the match once all players are ready.
func StartLobbyHandler(lobbies *lobby.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		if _, _, err := requireUser(r); err != nil {
			writeError(w, err)
			return
		}

		var req struct {
			LobbyID string `json:"lobby_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		lobbyID, err := uuid.Parse(req.LobbyID)
		if err != nil {
			writeError(w, apperr.InvalidArgument("invalid lobby id"))
			return
		}

		m, err := lobbies.StartLobby(r.Context(), lobbyID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}
