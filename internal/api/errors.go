package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carapaceos/carapaced/internal/carapace"
)

// apiError is the structured error body every non-2xx response uses.
type apiError struct {
	Error string `json:"error"`
}

// writeError maps a sentinel error kind to its HTTP status: usage ->
// 400, not-found -> 404, payload-too-large -> 413, pool-exhausted and
// pool-stopped -> 503, transport -> 502, everything else -> 500. A non-zero
// in-guest exit code is never surfaced as an HTTP error — only
// transport- and pool-level failures are.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, carapace.ErrUsage):
		status = http.StatusBadRequest
	case errors.Is(err, carapace.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, carapace.ErrPayloadTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, carapace.ErrPoolExhausted):
		status = http.StatusServiceUnavailable
	case errors.Is(err, carapace.ErrPoolStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, carapace.ErrTransport):
		status = http.StatusBadGateway
	}

	writeJSON(w, status, apiError{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
