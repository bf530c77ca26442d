package api

import (
	"context"
	"net/http"

	"github.com/okian/judgeboard/internal/domain/model"
)

// ScoreDependencies defines the interface for score submission.
type ScoreDependencies interface {
	SubmitScore(ctx context.Context, id model.Identity, sub model.Submission) (model.Result, error)
}

// ScoresHandler accepts judge score submissions.
type ScoresHandler struct {
	deps ScoreDependencies
	rw   responder
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies, rw responder) *ScoresHandler {
	return &ScoresHandler{deps: deps, rw: rw}
}

type scoreRequest struct {
	ParticipantID string `json:"participant_id"`
	Score         int    `json:"score"`
	Comment       string `json:"comment"`
}

// HandlePostScore handles POST /scores. It answers 201 when the judge's
// first score for the participant was created and 200 when it replaced an
// earlier one.
func (h *ScoresHandler) HandlePostScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_score"
	id, ok := IdentityFrom(r.Context())
	if !ok {
		h.rw.fail(w, r, NewKind(op, ErrUnauthorized))
		return
	}
	var req scoreRequest
	if err := decode(w, r, op, &req); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	res, err := h.deps.SubmitScore(r.Context(), id, model.Submission{
		ParticipantID: req.ParticipantID,
		Value:         req.Score,
		Comment:       req.Comment,
	})
	if err != nil {
		h.rw.fail(w, r, Wrap(op, err))
		return
	}
	status, msg := http.StatusOK, "Score updated"
	if res.Outcome == model.OutcomeCreated {
		status, msg = http.StatusCreated, "Score recorded"
	}
	h.rw.ok(w, status, scoreFrom(res.Score), nil, msg)
}
