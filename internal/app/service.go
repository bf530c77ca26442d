// Package service wires the store, ledger, registration, ranking and auth
// components into the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/okian/judgeboard/internal/adapters/auth"
	"github.com/okian/judgeboard/internal/adapters/repository"
	"github.com/okian/judgeboard/internal/domain/ledger"
	"github.com/okian/judgeboard/internal/domain/model"
	"github.com/okian/judgeboard/internal/domain/ranking"
	"github.com/okian/judgeboard/internal/domain/registration"
	"github.com/okian/judgeboard/internal/domain/scoring"
	"github.com/okian/judgeboard/pkg/logger"
	"github.com/okian/judgeboard/pkg/metrics"
)

const (
	storageMemory   = "memory"
	storagePostgres = "postgres"

	// RecentActivityLimit is how many latest score changes the overview shows.
	RecentActivityLimit = 10
)

// ParticipantSummary pairs a participant with its current aggregate.
type ParticipantSummary struct {
	model.Participant
	model.Aggregate
}

// Overview is the administrator dashboard payload.
type Overview struct {
	Stats  model.Stats
	Recent []model.ScoreView
	Board  ranking.Board
}

// components is everything built on Start; it is replaced as a whole.
type components struct {
	store     repository.Store
	engine    *scoring.Engine
	ledger    *ledger.Ledger
	registrar *registration.Registrar
	board     *ranking.View
	auth      *auth.Authenticator
}

// Service implements the API dependencies for the scoreboard system.
type Service struct {
	mu sync.RWMutex

	// Configuration
	storage     string
	dsn         string
	autoMigrate bool
	seedFile    string
	mode        scoring.Mode
	bounds      scoring.Bounds
	cacheTTL    time.Duration
	jwtSecret   string
	tokenTTL    time.Duration
	bcryptCost  int
	now         func() time.Time

	store repository.Store

	// State
	started bool
	c       *components

	logger logger.Logger
	tracer trace.Tracer
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		storage:    storageMemory,
		mode:       scoring.ModeSum,
		bounds:     scoring.DefaultBounds(),
		jwtSecret:  "change-me",
		tokenTTL:   12 * time.Hour,
		bcryptCost: 10,
		now:        time.Now,
		tracer:     otel.Tracer("github.com/okian/judgeboard/internal/app"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, loads the participant directory and builds the
// domain components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}

	s.logger.Info(ctx, "starting scoreboard service...",
		logger.String("storage", s.storage),
		logger.String("aggregationMode", string(s.mode)),
	)

	store, err := s.openStore(ctx)
	if err != nil {
		return err
	}
	if s.seedFile != "" {
		seed, err := repository.LoadSeed(s.seedFile)
		if err == nil {
			err = seed.Apply(ctx, store)
		}
		if err != nil {
			_ = store.Close()
			return fmt.Errorf("seed participants: %w", err)
		}
		s.logger.Info(ctx, "participant directory loaded",
			logger.String("file", s.seedFile),
			logger.Int("participants", len(seed.Participants)),
		)
	}

	hasher := auth.NewBcryptHasher(s.bcryptCost)
	registrar, err := registration.New(store, hasher,
		registration.WithClock(s.now),
		registration.WithLogger(s.logger.Named("registration")),
	)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("build registrar: %w", err)
	}
	engine := scoring.NewEngine(store, s.mode)

	s.c = &components{
		store:  store,
		engine: engine,
		ledger: ledger.New(store,
			ledger.WithBounds(s.bounds),
			ledger.WithClock(s.now),
			ledger.WithLogger(s.logger.Named("ledger")),
		),
		registrar: registrar,
		board:     ranking.NewView(engine, ranking.WithCacheTTL(s.cacheTTL), ranking.WithClock(s.now)),
		auth:      auth.NewAuthenticator(store, hasher, s.jwtSecret, s.tokenTTL).WithClock(s.now),
	}
	s.started = true

	s.logger.Info(ctx, "scoreboard service started",
		logger.Int("scoreMin", s.bounds.Min),
		logger.Int("scoreMax", s.bounds.Max),
		logger.Duration("cacheTTL", s.cacheTTL),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	switch s.storage {
	case storageMemory:
		return repository.NewMemoryStore(), nil
	case storagePostgres:
		pg, err := repository.Connect(ctx, s.dsn, s.logger.Named("postgres"))
		if err != nil {
			return nil, err
		}
		if s.autoMigrate {
			if err := pg.AutoMigrate(ctx); err != nil {
				_ = pg.Close()
				return nil, err
			}
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStorage, s.storage)
	}
}

// Stop closes the store. It is safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping scoreboard service...")
	if err := s.c.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store failed", logger.Error(err))
	}
	s.started = false
	s.store = nil
	s.logger.Info(ctx, "scoreboard service stopped")
}

func (s *Service) components() (*components, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.c, nil
}

func (s *Service) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "service."+name, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SubmitScore records a judge's score and drops any cached board.
func (s *Service) SubmitScore(ctx context.Context, id model.Identity, sub model.Submission) (res model.Result, err error) {
	ctx, span := s.span(ctx, "submit_score",
		attribute.String("judge.id", id.JudgeID),
		attribute.String("participant.id", sub.ParticipantID),
	)
	defer func() { end(span, err) }()

	c, err := s.components()
	if err != nil {
		return model.Result{}, err
	}
	res, err = c.ledger.SubmitScore(ctx, id, sub)
	if err != nil {
		return model.Result{}, err
	}
	c.board.Invalidate()
	span.SetAttributes(attribute.String("score.outcome", string(res.Outcome)))
	return res, nil
}

// RegisterJudge creates a judge and returns its id.
func (s *Service) RegisterJudge(ctx context.Context, reg registration.Registration) (id string, err error) {
	ctx, span := s.span(ctx, "register_judge")
	defer func() { end(span, err) }()

	c, err := s.components()
	if err != nil {
		return "", err
	}
	id, err = c.registrar.RegisterJudge(ctx, reg)
	if err != nil {
		return "", err
	}
	// totalJudges is part of the board metadata.
	c.board.Invalidate()
	return id, nil
}

// Login checks credentials and issues an identity token.
func (s *Service) Login(ctx context.Context, username, password string) (sess auth.Session, err error) {
	ctx, span := s.span(ctx, "login")
	defer func() { end(span, err) }()

	c, err := s.components()
	if err != nil {
		return auth.Session{}, err
	}
	return c.auth.Login(ctx, username, password)
}

// Authenticate resolves a bearer token to the judge identity it carries.
func (s *Service) Authenticate(token string) (model.Identity, error) {
	c, err := s.components()
	if err != nil {
		return model.Identity{}, err
	}
	return c.auth.Verify(token)
}

// Scoreboard returns the current ranked board.
func (s *Service) Scoreboard(ctx context.Context) (b ranking.Board, err error) {
	ctx, span := s.span(ctx, "scoreboard")
	defer func() { end(span, err) }()

	c, err := s.components()
	if err != nil {
		return ranking.Board{}, err
	}
	return c.board.Board(ctx)
}

// Participants lists every participant with its aggregate, by name.
func (s *Service) Participants(ctx context.Context) (out []ParticipantSummary, err error) {
	ctx, span := s.span(ctx, "participants")
	defer func() { end(span, err) }()

	c, err := s.components()
	if err != nil {
		return nil, err
	}
	snap, err := c.engine.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out = make([]ParticipantSummary, len(snap.Participants))
	for i, p := range snap.Participants {
		out[i] = ParticipantSummary{Participant: p, Aggregate: snap.Aggregates[p.ID]}
	}
	return out, nil
}

// Participant returns one participant with its aggregate.
func (s *Service) Participant(ctx context.Context, participantID string) (out ParticipantSummary, err error) {
	const op = "service.participant"
	ctx, span := s.span(ctx, "participant", attribute.String("participant.id", participantID))
	defer func() { end(span, err) }()

	c, err := s.components()
	if err != nil {
		return ParticipantSummary{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.store.View(gctx, func(r repository.Reader) error {
			p, err := r.Participant(participantID)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				return model.NotFound(op, "participant", participantID)
			case err != nil:
				return model.E(op, model.ErrStorage, err)
			}
			out.Participant = p
			return nil
		})
	})
	g.Go(func() error {
		agg, err := c.engine.Aggregate(gctx, participantID)
		out.Aggregate = agg
		return err
	})
	if err := g.Wait(); err != nil {
		return ParticipantSummary{}, err
	}
	return out, nil
}

// ParticipantScores lists the scores a participant received.
func (s *Service) ParticipantScores(ctx context.Context, participantID string) (out []model.ScoreView, err error) {
	ctx, span := s.span(ctx, "participant_scores", attribute.String("participant.id", participantID))
	defer func() { end(span, err) }()

	c, err := s.components()
	if err != nil {
		return nil, err
	}
	return c.ledger.ParticipantScores(ctx, participantID)
}

// JudgeScores lists the calling judge's most recent scores.
func (s *Service) JudgeScores(ctx context.Context, id model.Identity, limit int) (out []model.ScoreView, err error) {
	ctx, span := s.span(ctx, "judge_scores", attribute.String("judge.id", id.JudgeID))
	defer func() { end(span, err) }()

	c, err := s.components()
	if err != nil {
		return nil, err
	}
	return c.ledger.JudgeScores(ctx, id.JudgeID, limit)
}

// MyScore returns the calling judge's current score for a participant.
func (s *Service) MyScore(ctx context.Context, id model.Identity, participantID string) (out model.Score, err error) {
	ctx, span := s.span(ctx, "my_score",
		attribute.String("judge.id", id.JudgeID),
		attribute.String("participant.id", participantID),
	)
	defer func() { end(span, err) }()

	c, err := s.components()
	if err != nil {
		return model.Score{}, err
	}
	return c.ledger.JudgeScore(ctx, id.JudgeID, participantID)
}

// Stats summarises the ledger.
func (s *Service) Stats(ctx context.Context) (out model.Stats, err error) {
	ctx, span := s.span(ctx, "stats")
	defer func() { end(span, err) }()

	c, err := s.components()
	if err != nil {
		return model.Stats{}, err
	}
	return c.ledger.Stats(ctx)
}

// Overview fetches counts, recent activity and the board concurrently.
func (s *Service) Overview(ctx context.Context) (out Overview, err error) {
	ctx, span := s.span(ctx, "overview")
	defer func() { end(span, err) }()

	c, err := s.components()
	if err != nil {
		return Overview{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Stats, err = c.ledger.Stats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		out.Recent, err = c.ledger.RecentActivity(gctx, RecentActivityLimit)
		return err
	})
	g.Go(func() error {
		var err error
		out.Board, err = c.board.Board(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return out, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	goroutines := runtime.NumGoroutine()
	metrics.UpdateSystemMemoryUsage(mem.Alloc)
	metrics.UpdateSystemGoroutineCount(goroutines)

	stats := map[string]any{
		"started":         started,
		"storage":         s.storage,
		"aggregationMode": string(s.mode),
		"scoreMin":        s.bounds.Min,
		"scoreMax":        s.bounds.Max,
		"cacheTTLMs":      s.cacheTTL.Milliseconds(),
		"goroutines":      goroutines,
		"memoryBytes":     mem.Alloc,
	}
	if !started {
		return stats
	}
	ledgerStats, err := s.Stats(ctx)
	if err != nil {
		stats["error"] = "ledger unavailable"
		return stats
	}
	stats["judges"] = ledgerStats.Judges
	stats["participants"] = ledgerStats.Participants
	stats["scores"] = ledgerStats.Scores
	stats["averageScore"] = ledgerStats.AverageScore
	return stats
}
