package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/huddlehq/huddle/internal/chat"
	"github.com/huddlehq/huddle/internal/identity"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeServiceError maps domain errors onto HTTP status codes. Policy misses
// are explicit 403/404 responses, not silent no-ops.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "not_found")
	case errors.Is(err, chat.ErrNotAdmin):
		writeError(w, http.StatusForbidden, err.Error(), "not_admin")
	case errors.Is(err, chat.ErrNotMember):
		writeError(w, http.StatusForbidden, err.Error(), "not_member")
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrEmptyName),
		errors.Is(err, chat.ErrNoMembers),
		errors.Is(err, chat.ErrSelfTarget):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request")
	case errors.Is(err, identity.ErrNoOrganization):
		writeError(w, http.StatusForbidden, err.Error(), "no_organization")
	default:
		writeError(w, http.StatusInternalServerError, "internal error", "internal")
	}
}
