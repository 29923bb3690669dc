package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"safiripay/internal/config"
	"safiripay/internal/provider/daraja"
	"safiripay/internal/services/audit"
	"safiripay/internal/services/reconcile"

	"github.com/rs/zerolog/log"
)

// ReloadConfig re-reads the provider config singleton and swaps the
// snapshot. A failed load keeps the previous snapshot serving.
func ReloadConfig(store *config.ProviderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Reload(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		log.Info().Msg("provider config reloaded")
		writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}

// QueryBalance dispatches an account-balance request. Only the acceptance
// comes back here; the balance itself lands on the result callback.
func QueryBalance(client *daraja.Client, app config.AppCfg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ack, err := client.AccountBalance(r.Context(),
			app.BaseURL+"/callbacks/mpesa/balance",
			app.BaseURL+"/callbacks/mpesa/timeout")
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ack)
	}
}

// RegisterPull nominates the configured MSISDN for pull-transactions.
func RegisterPull(client *daraja.Client, app config.AppCfg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := client.RegisterPull(r.Context(), app.BaseURL+"/callbacks/mpesa/timeout")
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type pullReq struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RunPullAudit audits a time window on demand and reports the drift count.
func RunPullAudit(svc *audit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in pullReq
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, errResp{Error: "bad json", Kind: "bad_request"})
			return
		}
		if !in.Start.Before(in.End) {
			writeJSON(w, http.StatusBadRequest, errResp{Error: "start must precede end", Kind: "bad_request"})
			return
		}
		drift, err := svc.Audit(r.Context(), in.Start, in.End)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"drift": drift})
	}
}

type replayReq struct {
	EventIDs []int64 `json:"eventIds"`
}

// ReplayEvents re-runs stored provider events through reconciliation.
func ReplayEvents(svc *reconcile.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in replayReq
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || len(in.EventIDs) == 0 {
			writeJSON(w, http.StatusBadRequest, errResp{Error: "eventIds required", Kind: "bad_request"})
			return
		}
		n, err := svc.Replay(r.Context(), in.EventIDs)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"requeued": n})
	}
}
