package api

import (
	"net/http"

	"github.com/Wainainajnr/ngongtownbot/internal/analytics"
	"github.com/Wainainajnr/ngongtownbot/internal/identity"
)

type analyticsRequest struct {
	Event      string         `json:"event" validate:"required,max=64"`
	Category   string         `json:"category" validate:"max=64"`
	Label      string         `json:"label" validate:"max=256"`
	Value      *float64       `json:"value"`
	Properties map[string]any `json:"properties" validate:"max=32"`
}

// HandleAnalytics forwards a client-side event to the tracker.
func (h *Handler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	var req analyticsRequest
	if err := h.decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if !analytics.IsKnown(req.Event) {
		Error(w, http.StatusBadRequest, "unknown_event")
		return
	}

	props := make(map[string]any, len(req.Properties)+3)
	for k, v := range req.Properties {
		props[k] = v
	}
	if req.Category != "" {
		props["category"] = req.Category
	}
	if req.Label != "" {
		props["label"] = req.Label
	}
	if req.Value != nil {
		props["value"] = *req.Value
	}
	props["session_id"] = identity.SessionIDFromContext(r.Context())

	h.Tracker.Track(analytics.Event{
		Name:       req.Event,
		DistinctID: identity.VisitorIDFromContext(r.Context()),
		Properties: props,
	})
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}
