package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/judgeboard/internal/domain/ranking"
)

// ScoreboardDependencies defines the interface for scoreboard reads.
type ScoreboardDependencies interface {
	Scoreboard(ctx context.Context) (ranking.Board, error)
}

// ScoreboardHandler serves the polled public board.
type ScoreboardHandler struct {
	deps ScoreboardDependencies
	rw   responder
	poll time.Duration
}

// NewScoreboardHandler creates a new scoreboard handler.
func NewScoreboardHandler(deps ScoreboardDependencies, rw responder, poll time.Duration) *ScoreboardHandler {
	return &ScoreboardHandler{deps: deps, rw: rw, poll: poll}
}

// HandleGetScoreboard handles GET /scoreboard[?format=simple] requests.
// The simple format is the bare standings array.
func (h *ScoreboardHandler) HandleGetScoreboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_scoreboard"
	board, err := h.deps.Scoreboard(r.Context())
	if err != nil {
		h.rw.fail(w, r, Wrap(op, err))
		return
	}
	pollHeader(w, h.poll)
	w.Header().Set("Cache-Control", "no-store")
	if r.URL.Query().Get("format") == "simple" {
		writeJSON(w, http.StatusOK, standings(board))
		return
	}
	h.rw.ok(w, http.StatusOK, standings(board), boardMetadata(board, h.rw.now()), "Scoreboard retrieved successfully")
}
