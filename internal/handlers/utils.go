// internal/handlers/utils.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wordhex/wordhex/internal/apperr"
	"github.com/wordhex/wordhex/internal/auth"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses. Internal errors
// are surfaced as a generic failure without their cause.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	msg := err.Error()

	var status int
	switch code {
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeConflict:
		status = http.StatusConflict
	case apperr.CodeForbidden:
		status = http.StatusForbidden
	case apperr.CodeInvalidArgument, apperr.CodeNotReady:
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
		msg = "internal error"
	}

	writeJSON(w, status, map[string]string{
		"error": msg,
		"code":  string(code),
	})
}

// requireUser authenticates the request from its bearer token and returns
// the caller's user id and username.
func requireUser(r *http.Request) (uuid.UUID, string, error) {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		return uuid.Nil, "", apperr.Forbidden("missing bearer token")
	}
	userID, username, err := auth.VerifyToken(token)
	if err != nil {
		return uuid.Nil, "", apperr.Forbidden("invalid session token")
	}
	return userID, username, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.InvalidArgument("malformed request body: %v", err)
	}
	return nil
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
