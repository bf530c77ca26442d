// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/judgeboard/internal/adapters/auth"
	service "github.com/okian/judgeboard/internal/app"
	"github.com/okian/judgeboard/internal/domain/model"
	"github.com/okian/judgeboard/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Authenticator
	ScoreboardDependencies
	ScoreDependencies
	JudgeDependencies
	ParticipantDependencies
	AdminDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps       Dependencies
	limiter    *ClientLimiter
	publicPoll time.Duration
	adminPoll  time.Duration
	now        func() time.Time
	logger     logger.Logger
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:       deps,
		publicPoll: 10 * time.Second,
		adminPoll:  30 * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	rw := responder{now: s.now, logger: s.logger}
	health := NewHealthHandler()
	stats := NewStatsHandler(s.deps, rw)
	board := NewScoreboardHandler(s.deps, rw, s.publicPoll)
	scores := NewScoresHandler(s.deps, rw)
	judges := NewJudgesHandler(s.deps, rw)
	participants := NewParticipantsHandler(s.deps, rw)
	admin := NewAdminHandler(s.deps, rw, s.adminPoll)
	requireJudge := func(h http.HandlerFunc) http.HandlerFunc { return RequireJudge(s.deps, rw, h) }

	mux.HandleFunc("GET /healthz", MetricsMiddleware(health.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(stats.HandleStats, "stats"))
	mux.HandleFunc("GET /scoreboard", MetricsMiddleware(RateLimitMiddleware(s.limiter, rw, board.HandleGetScoreboard), "scoreboard"))
	mux.HandleFunc("POST /scores", MetricsMiddleware(requireJudge(scores.HandlePostScore), "scores"))
	mux.HandleFunc("POST /judges", MetricsMiddleware(judges.HandleRegister, "judges"))
	mux.HandleFunc("POST /login", MetricsMiddleware(judges.HandleLogin, "login"))
	mux.HandleFunc("GET /judges/me/scores", MetricsMiddleware(requireJudge(judges.HandleMyScores), "judge_scores"))
	mux.HandleFunc("GET /judges/me/scores/{participantId}", MetricsMiddleware(requireJudge(judges.HandleMyScore), "judge_score"))
	mux.HandleFunc("GET /participants", MetricsMiddleware(participants.HandleList, "participants"))
	mux.HandleFunc("GET /participants/{id}", MetricsMiddleware(participants.HandleGet, "participant"))
	mux.HandleFunc("GET /participants/{id}/scores", MetricsMiddleware(participants.HandleScores, "participant_scores"))
	mux.HandleFunc("GET /admin/overview", MetricsMiddleware(admin.HandleOverview, "admin_overview"))
}

type envelope struct {
	Success  bool      `json:"success"`
	Data     any       `json:"data"`
	Metadata *metadata `json:"metadata,omitempty"`
	Message  string    `json:"message,omitempty"`
}

type metadata struct {
	TotalParticipants int        `json:"totalParticipants"`
	TotalJudges       int        `json:"totalJudges"`
	LastUpdated       *time.Time `json:"lastUpdated"`
	Timestamp         time.Time  `json:"timestamp"`
}

type errorResponse struct {
	Success   bool               `json:"success"`
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	Errors    []model.FieldError `json:"errors,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// responder renders the success and error payloads shared by every handler.
type responder struct {
	now    func() time.Time
	logger logger.Logger
}

func (rw responder) ok(w http.ResponseWriter, status int, data any, meta *metadata, msg string) {
	writeJSON(w, status, envelope{Success: true, Data: data, Metadata: meta, Message: msg})
}

func (rw responder) writeError(w http.ResponseWriter, status int, code, msg string, fields []model.FieldError) {
	writeJSON(w, status, errorResponse{
		Code:      code,
		Message:   msg,
		Errors:    fields,
		Timestamp: rw.now().UTC(),
	})
}

// fail maps an error to its status and payload. Storage and unexpected
// errors are logged and reported with a generic message.
func (rw responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *model.ValidationError
		dup  *model.DuplicateError
		merr *model.Error
	)
	switch {
	case errors.As(err, &verr):
		rw.writeError(w, http.StatusUnprocessableEntity, "validation_error", "validation failed", verr.Fields)
	case errors.Is(err, ErrBadRequest):
		rw.writeError(w, http.StatusBadRequest, "bad_request", detail(err), nil)
	case errors.As(err, &dup):
		fields := make([]model.FieldError, len(dup.Fields))
		for i, f := range dup.Fields {
			fields[i] = model.FieldError{Field: f, Message: "already taken"}
		}
		rw.writeError(w, http.StatusConflict, "duplicate", "already registered", fields)
	case errors.Is(err, model.ErrNotFound):
		msg := "not found"
		if errors.As(err, &merr) && merr.Err != nil {
			msg = fmt.Sprintf("%v not found", merr.Err)
		}
		rw.writeError(w, http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, model.ErrConflict):
		rw.writeError(w, http.StatusConflict, "conflict", "the score changed concurrently; retry", nil)
	case errors.Is(err, model.ErrValidation):
		rw.writeError(w, http.StatusUnprocessableEntity, "validation_error", "validation failed", nil)
	case errors.Is(err, auth.ErrInvalidCredentials):
		rw.writeError(w, http.StatusUnauthorized, "unauthorized", auth.ErrInvalidCredentials.Error(), nil)
	case errors.Is(err, auth.ErrTokenExpired):
		rw.writeError(w, http.StatusUnauthorized, "unauthorized", auth.ErrTokenExpired.Error(), nil)
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, ErrUnauthorized):
		rw.writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	case errors.Is(err, ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		rw.writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
	case errors.Is(err, service.ErrNotStarted):
		rw.writeError(w, http.StatusServiceUnavailable, "unavailable", "service unavailable", nil)
	default:
		rw.logger.Error(r.Context(), "request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
		rw.writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}

// detail returns the innermost message of an error built by NewKind or
// WrapKind, without the op prefix.
func detail(err error) string {
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		errs := u.Unwrap()
		return errs[len(errs)-1].Error()
	case interface{ Unwrap() error }:
		return u.Unwrap().Error()
	}
	return err.Error()
}

// decode reads a JSON body of at most maxBodyBytes into v.
func decode(w http.ResponseWriter, r *http.Request, op string, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, errors.New("malformed JSON body"))
	}
	return nil
}

func pollHeader(w http.ResponseWriter, every time.Duration) {
	w.Header().Set("X-Poll-Interval", strconv.Itoa(int(every.Seconds())))
}
