package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/judgeboard/internal/adapters/auth"
	"github.com/okian/judgeboard/internal/domain/model"
	"github.com/okian/judgeboard/internal/domain/registration"
)

const (
	defaultScoresLimit = 20
	maxScoresLimit     = 100
)

// JudgeDependencies defines the interface for judge registration, login
// and a judge's own history.
type JudgeDependencies interface {
	RegisterJudge(ctx context.Context, reg registration.Registration) (string, error)
	Login(ctx context.Context, username, password string) (auth.Session, error)
	JudgeScores(ctx context.Context, id model.Identity, limit int) ([]model.ScoreView, error)
	MyScore(ctx context.Context, id model.Identity, participantID string) (model.Score, error)
}

// JudgesHandler handles judge registration and sessions.
type JudgesHandler struct {
	deps JudgeDependencies
	rw   responder
}

// NewJudgesHandler creates a new judges handler.
func NewJudgesHandler(deps JudgeDependencies, rw responder) *JudgesHandler {
	return &JudgesHandler{deps: deps, rw: rw}
}

type registerRequest struct {
	model.JudgeProfile
	Password         string   `json:"password"`
	Specializations  []string `json:"specializations"`
	CourtAssignments []string `json:"court_assignments"`
}

type registerResponse struct {
	ID string `json:"id"`
}

// HandleRegister handles POST /judges.
func (h *JudgesHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_judge"
	var req registerRequest
	if err := decode(w, r, op, &req); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	id, err := h.deps.RegisterJudge(r.Context(), registration.Registration{
		Profile:          req.JudgeProfile,
		Password:         req.Password,
		Specializations:  req.Specializations,
		CourtAssignments: req.CourtAssignments,
	})
	if err != nil {
		h.rw.fail(w, r, Wrap(op, err))
		return
	}
	h.rw.ok(w, http.StatusCreated, registerResponse{ID: id}, nil, "Judge registered")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token       string    `json:"token"`
	JudgeID     string    `json:"judge_id"`
	DisplayName string    `json:"display_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// HandleLogin handles POST /login.
func (h *JudgesHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	const op = "api.login"
	var req loginRequest
	if err := decode(w, r, op, &req); err != nil {
		h.rw.fail(w, r, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		h.rw.fail(w, r, WrapKind(op, ErrBadRequest, errors.New("username and password are required")))
		return
	}
	sess, err := h.deps.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.rw.fail(w, r, Wrap(op, err))
		return
	}
	h.rw.ok(w, http.StatusOK, loginResponse{
		Token:       sess.Token,
		JudgeID:     sess.JudgeID,
		DisplayName: sess.DisplayName,
		ExpiresAt:   sess.ExpiresAt.UTC(),
	}, nil, "")
}

// HandleMyScores handles GET /judges/me/scores[?limit=N].
func (h *JudgesHandler) HandleMyScores(w http.ResponseWriter, r *http.Request) {
	const op = "api.my_scores"
	id, ok := IdentityFrom(r.Context())
	if !ok {
		h.rw.fail(w, r, NewKind(op, ErrUnauthorized))
		return
	}
	limit := defaultScoresLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxScoresLimit {
			h.rw.fail(w, r, WrapKind(op, ErrBadRequest, errors.New("limit must be between 1 and 100")))
			return
		}
		limit = n
	}
	views, err := h.deps.JudgeScores(r.Context(), id, limit)
	if err != nil {
		h.rw.fail(w, r, Wrap(op, err))
		return
	}
	h.rw.ok(w, http.StatusOK, scoreViews(views), nil, "")
}

// HandleMyScore handles GET /judges/me/scores/{participantId}.
func (h *JudgesHandler) HandleMyScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.my_score"
	id, ok := IdentityFrom(r.Context())
	if !ok {
		h.rw.fail(w, r, NewKind(op, ErrUnauthorized))
		return
	}
	score, err := h.deps.MyScore(r.Context(), id, r.PathValue("participantId"))
	if err != nil {
		h.rw.fail(w, r, Wrap(op, err))
		return
	}
	h.rw.ok(w, http.StatusOK, scoreFrom(score), nil, "")
}
