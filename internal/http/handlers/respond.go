package handlers

import (
	"encoding/json"
	"net/http"

	"safiripay/internal/engine"

	"github.com/rs/zerolog/log"
)

type errResp struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine error kinds to HTTP status codes. Provider
// rejection is not in this table: it is a business outcome, handled by the
// initiate handler as a 200 with a failure payload.
func writeError(w http.ResponseWriter, err error) {
	kind := engine.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case engine.KindConfig:
		status = http.StatusServiceUnavailable
	case engine.KindBadPhone, engine.KindBadAmount, engine.KindExceedsRemaining:
		status = http.StatusBadRequest
	case engine.KindNotFound:
		status = http.StatusNotFound
	case engine.KindProviderUnreachable:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("internal error")
	}
	writeJSON(w, status, errResp{Error: err.Error(), Kind: string(kind)})
}
