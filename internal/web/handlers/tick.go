package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/arbitrageos/campaignd/internal/scheduler"
)

// TickHandler exposes the orchestrator to the external scheduler and to
// manual operator re-triggers; both endpoints behave identically.
type TickHandler struct {
	orchestrator *scheduler.Orchestrator
	budget       time.Duration
}

func NewTickHandler(orchestrator *scheduler.Orchestrator, budget time.Duration) *TickHandler {
	if budget <= 0 {
		budget = 5 * time.Minute
	}
	return &TickHandler{
		orchestrator: orchestrator,
		budget:       budget,
	}
}

type tickResponse struct {
	Success  bool              `json:"success"`
	Duration string            `json:"duration"`
	Results  scheduler.Summary `json:"results"`
	Error    string            `json:"error,omitempty"`
}

func (h *TickHandler) HandleTick(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), h.budget)
	defer cancel()

	summary, err := h.orchestrator.Tick(ctx)
	duration := time.Since(started)

	if err != nil {
		// Whatever landed in the summary before the failure is still
		// reported alongside the tick-level error.
		slog.ErrorContext(r.Context(), "tick failed", "duration", duration, "error", err)
		writeJSON(w, http.StatusInternalServerError, tickResponse{
			Success:  false,
			Duration: duration.String(),
			Results:  summary,
			Error:    err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, tickResponse{
		Success:  true,
		Duration: duration.String(),
		Results:  summary,
	})
}
