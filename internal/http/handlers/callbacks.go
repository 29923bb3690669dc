package handlers

import (
	"errors"
	"io"
	"net/http"

	"safiripay/internal/domain/event"
	"safiripay/internal/services/reconcile"

	"github.com/rs/zerolog/log"
)

// callbackAck is the body Daraja expects back on ingestion.
type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// maxCallbackBody bounds provider payloads; real callbacks are a few KB.
const maxCallbackBody = 1 << 20

// STKCallback receives the asynchronous push outcome. Always 200 to the
// provider except for unparseable payloads (400) and storage failures (503),
// so a processing quirk does not trigger a retry storm.
func STKCallback(svc *reconcile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, callbackAck{ResultCode: 1, ResultDesc: "unreadable body"})
			return
		}
		if err := svc.ProcessSTKCallback(r.Context(), raw); err != nil {
			if errors.Is(err, reconcile.ErrUnparseable) {
				writeJSON(w, http.StatusBadRequest, callbackAck{ResultCode: 1, ResultDesc: "invalid payload"})
				return
			}
			log.Error().Err(err).Msg("stk callback processing failed")
			writeJSON(w, http.StatusServiceUnavailable, callbackAck{ResultCode: 1, ResultDesc: "try again"})
			return
		}
		writeJSON(w, http.StatusOK, callbackAck{ResultCode: 0, ResultDesc: "Accepted"})
	}
}

// ProviderEventSink records balance results and pull queue-timeouts.
func ProviderEventSink(svc *reconcile.Service, kind event.ProviderKind, eventType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, callbackAck{ResultCode: 1, ResultDesc: "unreadable body"})
			return
		}
		if err := svc.RecordProviderEvent(r.Context(), kind, eventType, "", raw); err != nil {
			if errors.Is(err, reconcile.ErrUnparseable) {
				writeJSON(w, http.StatusBadRequest, callbackAck{ResultCode: 1, ResultDesc: "invalid payload"})
				return
			}
			log.Error().Err(err).Str("kind", string(kind)).Msg("provider event record failed")
			writeJSON(w, http.StatusServiceUnavailable, callbackAck{ResultCode: 1, ResultDesc: "try again"})
			return
		}
		writeJSON(w, http.StatusOK, callbackAck{ResultCode: 0, ResultDesc: "Accepted"})
	}
}
