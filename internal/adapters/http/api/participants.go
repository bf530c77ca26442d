package api

import (
	"context"
	"net/http"

	service "github.com/okian/judgeboard/internal/app"
	"github.com/okian/judgeboard/internal/domain/model"
)

// ParticipantDependencies defines the interface for participant reads.
type ParticipantDependencies interface {
	Participants(ctx context.Context) ([]service.ParticipantSummary, error)
	Participant(ctx context.Context, participantID string) (service.ParticipantSummary, error)
	ParticipantScores(ctx context.Context, participantID string) ([]model.ScoreView, error)
}

// ParticipantsHandler handles participant requests.
type ParticipantsHandler struct {
	deps ParticipantDependencies
	rw   responder
}

// NewParticipantsHandler creates a new participants handler.
func NewParticipantsHandler(deps ParticipantDependencies, rw responder) *ParticipantsHandler {
	return &ParticipantsHandler{deps: deps, rw: rw}
}

// HandleList handles GET /participants.
func (h *ParticipantsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_participants"
	all, err := h.deps.Participants(r.Context())
	if err != nil {
		h.rw.fail(w, r, Wrap(op, err))
		return
	}
	out := make([]participantDTO, len(all))
	for i, p := range all {
		out[i] = participantFrom(p)
	}
	h.rw.ok(w, http.StatusOK, out, nil, "")
}

// HandleGet handles GET /participants/{id}.
func (h *ParticipantsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_participant"
	p, err := h.deps.Participant(r.Context(), r.PathValue("id"))
	if err != nil {
		h.rw.fail(w, r, Wrap(op, err))
		return
	}
	h.rw.ok(w, http.StatusOK, participantFrom(p), nil, "")
}

// HandleScores handles GET /participants/{id}/scores.
func (h *ParticipantsHandler) HandleScores(w http.ResponseWriter, r *http.Request) {
	const op = "api.participant_scores"
	views, err := h.deps.ParticipantScores(r.Context(), r.PathValue("id"))
	if err != nil {
		h.rw.fail(w, r, Wrap(op, err))
		return
	}
	h.rw.ok(w, http.StatusOK, scoreViews(views), nil, "")
}
