package handlers

import (
	"net/http"
	"time"

	"safiripay/internal/domain/event"
	"safiripay/internal/store/repositories"
)

type eventResp struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	EventType   string `json:"eventType"`
	ExternalID  string `json:"externalId"`
	ReceivedAt  string `json:"receivedAt"`
	Processed   bool   `json:"processed"`
	ProcessedAt string `json:"processedAt,omitempty"`
	ReplayCount int    `json:"replayCount,omitempty"`
	Error       string `json:"error,omitempty"`
}

func eventView(e *event.Event) eventResp {
	resp := eventResp{
		ID:          e.ID,
		Kind:        string(e.Kind),
		EventType:   e.EventType,
		ExternalID:  e.ExternalID,
		ReceivedAt:  e.ReceivedAt.Format(time.RFC3339),
		Processed:   e.Processed,
		ReplayCount: e.ReplayCount,
		Error:       e.Error,
	}
	if e.ProcessedAt != nil {
		resp.ProcessedAt = e.ProcessedAt.Format(time.RFC3339)
	}
	return resp
}

// ListEvents pages over provider events; ?unprocessed=true narrows to the
// backlog.
func ListEvents(events repositories.EventRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)
		onlyUnprocessed := r.URL.Query().Get("unprocessed") == "true"
		list, err := events.List(r.Context(), onlyUnprocessed, limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]eventResp, 0, len(list))
		for _, e := range list {
			out = append(out, eventView(e))
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": out})
	}
}
