package api

import (
	"context"
	"net/http"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats(ctx context.Context) map[string]any
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
	rw            responder
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider, rw responder) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, rw: rw}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	h.rw.ok(w, http.StatusOK, h.statsProvider.GetStats(r.Context()), nil, "")
}
