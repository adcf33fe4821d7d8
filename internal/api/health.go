package api

import (
	"context"
	"log/slog"
	"net/http"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	LeadStore string `json:"leadStore"`
}

// HandleHealth reports service status. It fails when the lead store is
// configured but unreachable.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: h.Version, LeadStore: "disabled"}
	if h.Repo == nil {
		JSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.HealthTimeout)
	defer cancel()
	if err := h.Repo.Ping(ctx); err != nil {
		slog.Warn("Lead store health check failed", "error", err)
		resp.Status = "degraded"
		resp.LeadStore = "unavailable"
		JSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.LeadStore = "ok"
	JSON(w, http.StatusOK, resp)
}
