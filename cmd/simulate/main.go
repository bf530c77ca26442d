package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/judgeboard/internal/simulate"
	"github.com/okian/judgeboard/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	def := simulate.DefaultConfig()
	var (
		baseURL     = flag.String("url", def.BaseURL, "Base URL of the service")
		judges      = flag.Int("judges", def.Judges, "Number of judges to register")
		submissions = flag.Int("submissions", def.Submissions, "Number of score submissions to send")
		repeat      = flag.Float64("repeat", def.RepeatRatio, "Share of submissions that re-score an earlier pair")
		workers     = flag.Int("workers", def.Workers, "Number of concurrent submitters")
		rps         = flag.Float64("rate", 0, "Submissions per second across all workers (0 = unlimited)")
		pollEvery   = flag.Duration("poll", def.PollEvery, "Scoreboard poll period while submitting (0 disables polling)")
		timeout     = flag.Duration("timeout", def.Timeout, "HTTP request timeout")
		runTimeout  = flag.Duration("run-timeout", defaultRunTimeout, "Upper bound for the whole run")
		seed        = flag.Uint64("seed", 0, "Plan seed (0 = derive from clock)")
		format      = flag.String("log-format", "text", "Log format: text or json")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*format)); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *runTimeout)
	defer cancel()

	cfg := simulate.Config{
		BaseURL:     *baseURL,
		Judges:      *judges,
		Submissions: *submissions,
		RepeatRatio: *repeat,
		Workers:     *workers,
		Rate:        *rps,
		PollEvery:   *pollEvery,
		Timeout:     *timeout,
		Seed:        *seed,
		Verbose:     *verbose,
	}
	if _, err := simulate.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
}
