package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"safiripay/internal/domain/attempt"
	"safiripay/internal/domain/obligation"
	"safiripay/internal/engine"
	"safiripay/internal/services/orchestrator"
	"safiripay/internal/store/repositories"

	"github.com/go-chi/chi/v5"
)

type initiateReq struct {
	ObligationKind string `json:"obligationKind"`
	ObligationID   int64  `json:"obligationId"`
	Phone          string `json:"phone"`
	Amount         int    `json:"amount"`
	Description    string `json:"description"`
}

type attemptResp struct {
	LocalRef          string `json:"localRef"`
	Status            string `json:"status"`
	Amount            int    `json:"amount"`
	ObligationKind    string `json:"obligationKind"`
	ObligationID      int64  `json:"obligationId"`
	CheckoutRequestID string `json:"checkoutRequestId,omitempty"`
	ProviderReceipt   string `json:"providerReceipt,omitempty"`
	CustomerMessage   string `json:"customerMessage,omitempty"`
	FailureReason     string `json:"failureReason,omitempty"`
	CreatedAt         string `json:"createdAt"`
	CompletedAt       string `json:"completedAt,omitempty"`
}

func attemptView(a *attempt.Attempt) attemptResp {
	resp := attemptResp{
		LocalRef:          a.LocalRef,
		Status:            string(a.Status),
		Amount:            a.Amount,
		ObligationKind:    string(a.ObligationKind),
		ObligationID:      a.ObligationID,
		CheckoutRequestID: a.CheckoutRequestID,
		ProviderReceipt:   a.ProviderReceipt,
		CreatedAt:         a.CreatedAt.Format(time.RFC3339),
	}
	if a.CompletedAt != nil {
		resp.CompletedAt = a.CompletedAt.Format(time.RFC3339)
	}
	if reason, ok := a.Metadata["result_desc"].(string); ok && a.Status == attempt.StatusFailed {
		resp.FailureReason = reason
	}
	return resp
}

// InitiatePayment kicks off one STK push. A provider business rejection
// still answers 200: the caller reads the failed attempt state.
func InitiatePayment(svc *orchestrator.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in initiateReq
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, errResp{Error: "bad json", Kind: "bad_request"})
			return
		}
		kind := obligation.Kind(in.ObligationKind)
		if !kind.Valid() {
			writeJSON(w, http.StatusBadRequest, errResp{Error: "unknown obligation kind", Kind: "bad_request"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 35*time.Second)
		defer cancel()

		res, err := svc.InitiateStkPush(ctx, kind, in.ObligationID, in.Phone, in.Amount, in.Description)
		if err != nil {
			if engine.Is(err, engine.KindProviderRejected) && res != nil && res.Attempt != nil {
				writeJSON(w, http.StatusOK, attemptView(res.Attempt))
				return
			}
			writeError(w, err)
			return
		}

		out := attemptView(res.Attempt)
		if res.Provider != nil {
			out.CustomerMessage = res.Provider.CustomerMessage
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// AttemptByLocalRef serves the status-polling view.
func AttemptByLocalRef(attempts repositories.AttemptRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := attempts.ByLocalRef(r.Context(), chi.URLParam(r, "localRef"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, attemptView(a))
	}
}

// ListAttempts pages over attempts, newest first.
func ListAttempts(attempts repositories.AttemptRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)
		list, err := attempts.List(r.Context(), limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]attemptResp, 0, len(list))
		for _, a := range list {
			out = append(out, attemptView(a))
		}
		writeJSON(w, http.StatusOK, map[string]any{"attempts": out})
	}
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
