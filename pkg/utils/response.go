package utils

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// RespondJSON writes payload as a JSON response.
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// RespondError writes {"error": message}.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondUpstreamError relays an upstream failure under the upstream's own
// status. A JSON body is embedded as-is; anything else becomes a string.
func RespondUpstreamError(w http.ResponseWriter, status int, body []byte) {
	if len(body) > 0 && json.Valid(body) {
		RespondJSON(w, status, map[string]json.RawMessage{"error": body})
		return
	}
	RespondError(w, status, string(body))
}
