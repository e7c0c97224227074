package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nexflow/flowd/internal/flow"
	"github.com/nexflow/flowd/internal/repository"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes. Validation failures
// carry the full error list so the editor can mark offending nodes.
func writeError(w http.ResponseWriter, err error) {
	var verrs flow.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"issues": verrs,
		})
		return
	}

	var stale *flow.StaleVersionError
	if errors.As(err, &stale) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":        stale.Error(),
			"head_version": stale.HeadVersion,
		})
		return
	}

	var authz *flow.AuthorizationError
	if errors.As(err, &authz) {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": authz.Error()})
		return
	}

	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}

	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
}
