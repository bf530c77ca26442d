package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/okian/judgeboard/internal/adapters/http/api"
	"github.com/okian/judgeboard/internal/adapters/http/site"
	"github.com/okian/judgeboard/internal/adapters/http/swagger"
	app "github.com/okian/judgeboard/internal/app"
	"github.com/okian/judgeboard/internal/config"
	"github.com/okian/judgeboard/internal/domain/scoring"
	"github.com/okian/judgeboard/pkg/logger"
	"github.com/okian/judgeboard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger isn't configured yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	mopts, err := metricsOptions(cfg)
	if err != nil {
		log.Error(ctx, "invalid metrics configuration", logger.Error(err))
		os.Exit(1)
	}
	metrics.Configure(mopts...)

	opts, err := serviceOptions(cfg)
	if err != nil {
		log.Error(ctx, "invalid service configuration", logger.Error(err))
		os.Exit(1)
	}
	svc := app.New(append(opts, app.WithLogger(log.Named("service")))...)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		os.Exit(1)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           routes(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
}

// metricsOptions translates the metrics keys into manager options.
func metricsOptions(cfg *config.Config) ([]metrics.Option, error) {
	opts := []metrics.Option{
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithRefreshInterval(time.Duration(cfg.MetricsRefreshIntervalS) * time.Second),
	}
	if strings.TrimSpace(cfg.MetricsBucketsMS) == "" {
		return opts, nil
	}
	var buckets []float64
	for _, raw := range strings.Split(cfg.MetricsBucketsMS, ",") {
		b, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("metrics_buckets_ms: %w", err)
		}
		if len(buckets) > 0 && b <= buckets[len(buckets)-1] {
			return nil, fmt.Errorf("metrics_buckets_ms: buckets must increase, got %v after %v", b, buckets[len(buckets)-1])
		}
		buckets = append(buckets, b)
	}
	return append(opts, metrics.WithHistogramBuckets(buckets)), nil
}

// serviceOptions translates the validated configuration into service options.
func serviceOptions(cfg *config.Config) ([]app.Option, error) {
	mode, err := scoring.ParseMode(cfg.AggregationMode)
	if err != nil {
		return nil, err
	}
	opts := []app.Option{
		app.WithAggregationMode(mode),
		app.WithScoreBounds(cfg.ScoreMin, cfg.ScoreMax),
		app.WithCacheTTL(time.Duration(cfg.RankingCacheTTLMS) * time.Millisecond),
		app.WithTokenSigning(cfg.JWTSecret, time.Duration(cfg.TokenTTLMinutes)*time.Minute),
		app.WithBcryptCost(cfg.BcryptCost),
		app.WithSeedFile(cfg.SeedFile),
	}
	if cfg.Storage == config.StoragePostgres {
		opts = append(opts, app.WithPostgres(cfg.PostgresDSN, cfg.AutoMigrate))
	} else {
		opts = append(opts, app.WithMemoryStorage())
	}
	return opts, nil
}

// routes builds the HTTP handler: documentation plus the business API.
func routes(ctx context.Context, cfg *config.Config, svc *app.Service) http.Handler {
	mux := http.NewServeMux()
	site.Register(ctx, mux)
	swagger.Register(ctx, mux)
	api.NewServer(svc,
		api.WithRateLimit(cfg.ScoreboardRateLimit, cfg.ScoreboardRateBurst),
		api.WithPollIntervals(
			time.Duration(cfg.PublicPollIntervalS)*time.Second,
			time.Duration(cfg.AdminPollIntervalS)*time.Second,
		),
		api.WithLogger(logger.Named("api")),
	).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater refreshes process gauges until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
