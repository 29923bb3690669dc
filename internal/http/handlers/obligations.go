package handlers

import (
	"net/http"
	"strconv"

	"safiripay/internal/domain/obligation"
	"safiripay/internal/store/repositories"

	"github.com/go-chi/chi/v5"
)

type obligationResp struct {
	Kind           string `json:"kind"`
	ID             int64  `json:"id"`
	Status         string `json:"status"`
	TotalAmount    int    `json:"totalAmount"`
	PaidAmount     int    `json:"paidAmount"`
	Remaining      int    `json:"remaining"`
	ProgressPct    int    `json:"progressPct"`
	FullyPaid      bool   `json:"fullyPaid"`
	AcceptsPayment bool   `json:"acceptsPayment"`
}

// ObligationProgress serves the pay-in-parts progress view.
func ObligationProgress(obligations repositories.ObligationRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := obligation.Kind(chi.URLParam(r, "kind"))
		if !kind.Valid() {
			writeJSON(w, http.StatusBadRequest, errResp{Error: "unknown obligation kind", Kind: "bad_request"})
			return
		}
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errResp{Error: "bad obligation id", Kind: "bad_request"})
			return
		}
		o, err := obligations.Load(r.Context(), kind, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, obligationResp{
			Kind:           string(o.Kind),
			ID:             o.ID,
			Status:         string(o.Status),
			TotalAmount:    o.TotalAmount,
			PaidAmount:     o.SettledAmount,
			Remaining:      o.Remaining(),
			ProgressPct:    o.ProgressPct(),
			FullyPaid:      o.FullyPaid(),
			AcceptsPayment: o.AcceptsPayment(),
		})
	}
}
