// internal/handlers/match.go
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/wordhex/wordhex/internal/apperr"
	"github.com/wordhex/wordhex/internal/match"
	"github.com/wordhex/wordhex/internal/models"
)

// progressRequest mirrors match.ProgressUpdate on the wire. last_turn is
// kept raw so an explicit null (clear the banner) is distinguishable from
// the field being omitted.
type progressRequest struct {
	MatchID         string               `json:"match_id"`
	Players         []models.MatchPlayer `json:"players,omitempty"`
	CurrentPlayerID *string              `json:"current_player_id,omitempty"`
	GridData        json.RawMessage      `json:"grid_data,omitempty"`
	WordsFound      *int                 `json:"words_found,omitempty"`
	RoundNumber     *int                 `json:"round_number,omitempty"`
	LastTurn        json.RawMessage      `json:"last_turn,omitempty"`
	GameOver        bool                 `json:"game_over,omitempty"`
}

// UpdateMatchProgressHandler applies a partial in-match state update.
func UpdateMatchProgressHandler(engine *match.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		if _, _, err := requireUser(r); err != nil {
			writeError(w, err)
			return
		}

		var req progressRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		matchID, err := uuid.Parse(req.MatchID)
		if err != nil {
			writeError(w, apperr.InvalidArgument("invalid match id"))
			return
		}

		u := match.ProgressUpdate{
			MatchID:     matchID,
			Players:     req.Players,
			GridData:    req.GridData,
			WordsFound:  req.WordsFound,
			RoundNumber: req.RoundNumber,
			GameOver:    req.GameOver,
		}
		if req.CurrentPlayerID != nil {
			id, err := uuid.Parse(*req.CurrentPlayerID)
			if err != nil {
				writeError(w, apperr.InvalidArgument("invalid current player id"))
				return
			}
			u.CurrentPlayerID = &id
		}
		if len(req.LastTurn) > 0 {
			u.LastTurnSet = true
			if !bytes.Equal(bytes.TrimSpace(req.LastTurn), []byte("null")) {
				var turn models.TurnRecord
				if err := json.Unmarshal(req.LastTurn, &turn); err != nil {
					writeError(w, apperr.InvalidArgument("invalid last turn"))
					return
				}
				u.LastTurn = &turn
			}
		}

		m, err := engine.UpdateProgress(r.Context(), u)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

// RecordMatchResultsHandler finalizes a match with an authoritative roster.
func RecordMatchResultsHandler(engine *match.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requirePost(w, r) {
			return
		}
		if _, _, err := requireUser(r); err != nil {
			writeError(w, err)
			return
		}

		var req struct {
			MatchID    string               `json:"match_id"`
			LobbyID    *string              `json:"lobby_id,omitempty"`
			ServerID   string               `json:"server_id"`
			Players    []models.MatchPlayer `json:"players"`
			GridData   json.RawMessage      `json:"grid_data,omitempty"`
			WordsFound *int                 `json:"words_found,omitempty"`
		}
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		matchID, err := uuid.Parse(req.MatchID)
		if err != nil {
			writeError(w, apperr.InvalidArgument("invalid match id"))
			return
		}
		if len(req.Players) == 0 {
			writeError(w, apperr.InvalidArgument("players required"))
			return
		}

		res := match.Results{
			MatchID:    matchID,
			ServerID:   req.ServerID,
			Players:    req.Players,
			GridData:   req.GridData,
			WordsFound: req.WordsFound,
		}
		if req.LobbyID != nil {
			id, err := uuid.Parse(*req.LobbyID)
			if err != nil {
				writeError(w, apperr.InvalidArgument("invalid lobby id"))
				return
			}
			res.LobbyID = &id
		}

		m, err := engine.RecordResults(r.Context(), res)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}
