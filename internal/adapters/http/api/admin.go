package api

import (
	"context"
	"net/http"
	"time"

	service "github.com/okian/judgeboard/internal/app"
)

// AdminDependencies defines the interface for the admin overview.
type AdminDependencies interface {
	Overview(ctx context.Context) (service.Overview, error)
}

// AdminHandler serves the administrator dashboard data.
type AdminHandler struct {
	deps AdminDependencies
	rw   responder
	poll time.Duration
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies, rw responder, poll time.Duration) *AdminHandler {
	return &AdminHandler{deps: deps, rw: rw, poll: poll}
}

// HandleOverview handles GET /admin/overview.
func (h *AdminHandler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	const op = "api.admin_overview"
	ov, err := h.deps.Overview(r.Context())
	if err != nil {
		h.rw.fail(w, r, Wrap(op, err))
		return
	}
	pollHeader(w, h.poll)
	h.rw.ok(w, http.StatusOK, overviewDTO{
		Stats: statsDTO{
			Judges:       ov.Stats.Judges,
			Participants: ov.Stats.Participants,
			Scores:       ov.Stats.Scores,
			AverageScore: points(ov.Stats.AverageScore),
		},
		RecentActivity: scoreViews(ov.Recent),
		Scoreboard:     standings(ov.Board),
	}, boardMetadata(ov.Board, h.rw.now()), "")
}
