package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/judgeboard/pkg/logger"
)

const judgePassword = "simulated-judge"

// Run executes a complete simulation against cfg.BaseURL.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	log := logger.Named("simulate")
	start := time.Now()
	c := NewClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting judgeboard simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("judges", cfg.Judges),
		logger.Int("submissions", cfg.Submissions),
		logger.Int("workers", cfg.Workers),
		logger.Float64("repeatRatio", cfg.RepeatRatio),
	)

	if err := c.Health(ctx); err != nil {
		return Stats{}, fmt.Errorf("service health check failed: %w", err)
	}
	settings, err := c.Settings(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("read server settings: %w", err)
	}
	participants, err := c.Participants(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list participants: %w", err)
	}
	if len(participants) == 0 {
		return Stats{}, ErrNoParticipants
	}
	baseline, err := c.Scoreboard(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("baseline scoreboard: %w", err)
	}

	tokens, err := registerJudges(ctx, c, cfg)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{JudgesRegistered: len(tokens)}
	log.Info(ctx, "judges registered", logger.Int("judges", len(tokens)))

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	plan := BuildPlan(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		len(tokens), participants, cfg.Submissions, cfg.RepeatRatio, settings.ScoreMin, settings.ScoreMax)
	summed := settings.AggregationMode == "sum"

	var polls, violations atomic.Int64
	pollCtx, stopPolling := context.WithCancel(ctx)
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		poll(pollCtx, c, cfg.PollEvery, summed, log, &polls, &violations)
	}()

	submit(ctx, c, cfg, tokens, plan, &stats, log)
	stopPolling()
	<-pollDone
	stats.Polls = int(polls.Load())
	stats.PollViolations = int(violations.Load())

	final, err := c.Scoreboard(ctx)
	if err != nil {
		return stats, fmt.Errorf("final scoreboard: %w", err)
	}
	var errs []error
	if err := VerifyBoard(final, summed); err != nil {
		errs = append(errs, fmt.Errorf("final board: %w", err))
	}
	if stats.Failed == 0 {
		if err := VerifyTotals(final, baseline, Expect(plan), summed); err != nil {
			errs = append(errs, err)
		}
	} else {
		log.Warn(ctx, "skipping total verification after failed submissions", logger.Int("failed", stats.Failed))
	}
	if stats.PollViolations > 0 {
		errs = append(errs, fmt.Errorf("%w: %d polled boards", ErrInvariant, stats.PollViolations))
	}

	stats.Duration = time.Since(start)
	displayFinalStats(ctx, log, stats, seed)
	if err := errors.Join(errs...); err != nil {
		return stats, err
	}
	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

// registerJudges creates cfg.Judges fresh judges and returns their tokens.
func registerJudges(ctx context.Context, c *Client, cfg Config) ([]string, error) {
	runID := uuid.NewString()[:8]
	tokens := make([]string, cfg.Judges)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i := range cfg.Judges {
		g.Go(func() error {
			username := "sim_" + runID + "_" + strconv.Itoa(i)
			form := JudgeForm{
				Username:     username,
				DisplayName:  "Simulated Judge " + strconv.Itoa(i),
				FirstName:    "Sim",
				LastName:     "Judge",
				Email:        username + "@simulate.local",
				Phone:        "555-010-" + fmt.Sprintf("%04d", i%10000),
				BarNumber:    "SIM-" + runID + "-" + strconv.Itoa(i),
				LicenseState: "NA",
				Password:     judgePassword,
			}
			if _, err := c.RegisterJudge(gctx, form); err != nil {
				return fmt.Errorf("register %s: %w", username, err)
			}
			token, err := c.Login(gctx, username, judgePassword)
			if err != nil {
				return fmt.Errorf("login %s: %w", username, err)
			}
			tokens[i] = token
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// submit sends the plan with cfg.Workers workers. Steps of one pair always
// go to the same worker.
func submit(ctx context.Context, c *Client, cfg Config, tokens []string, plan []Step, stats *Stats, log logger.Logger) {
	workers := max(cfg.Workers, 1)
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}

	queues := make([][]Step, workers)
	for _, s := range plan {
		w := Shard(s, workers)
		queues[w] = append(queues[w], s)
	}

	var created, updated, failed atomic.Int64
	var g errgroup.Group
	for _, q := range queues {
		g.Go(func() error {
			for _, s := range q {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				isNew, err := c.Submit(ctx, tokens[s.Judge], s.ParticipantID, s.Score)
				switch {
				case err != nil:
					failed.Add(1)
					if cfg.Verbose {
						log.Warn(ctx, "submission failed", logger.String("participant", s.ParticipantID), logger.Error(err))
					}
				case isNew:
					created.Add(1)
				default:
					updated.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Created = int(created.Load())
	stats.Updated = int(updated.Load())
	stats.Failed = int(failed.Load())
	stats.Submitted = stats.Created + stats.Updated + stats.Failed
}

// poll fetches the board every period until ctx ends and checks each one.
func poll(ctx context.Context, c *Client, every time.Duration, summed bool, log logger.Logger, polls, violations *atomic.Int64) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		b, err := c.Scoreboard(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Debug(ctx, "poll failed", logger.Error(err))
			}
			continue
		}
		polls.Add(1)
		if err := VerifyBoard(b, summed); err != nil {
			violations.Add(1)
			log.Warn(ctx, "polled board violates invariants", logger.Error(err))
		}
	}
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats Stats, seed uint64) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("judgesRegistered", stats.JudgesRegistered),
		logger.Int("submitted", stats.Submitted),
		logger.Int("created", stats.Created),
		logger.Int("updated", stats.Updated),
		logger.Int("failed", stats.Failed),
		logger.Int("polls", stats.Polls),
		logger.Int("pollViolations", stats.PollViolations),
		logger.Duration("duration", stats.Duration),
		logger.Float64("submissionsPerSecond", perSecond),
		logger.Any("seed", seed),
	)
}
