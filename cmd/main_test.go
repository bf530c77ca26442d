package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/judgeboard/internal/adapters/http/site"
	app "github.com/okian/judgeboard/internal/app"
	"github.com/okian/judgeboard/internal/config"
	"github.com/okian/judgeboard/pkg/logger"
	"github.com/okian/judgeboard/pkg/metrics"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

func TestServiceOptions(t *testing.T) {
	convey.Convey("Given configuration loaded from the environment", t, func() {
		t.Setenv("JUDGEBOARD_ADDR", ":8080")
		t.Setenv("JUDGEBOARD_AGGREGATION_MODE", "mean")
		t.Setenv("JUDGEBOARD_SEED_FILE", "../internal/adapters/repository/testdata/participants.yaml")
		t.Setenv("JUDGEBOARD_BCRYPT_COST", "4")

		ctx := context.Background()
		cfg, err := config.Load(ctx)
		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg.Addr, convey.ShouldEqual, ":8080")

		convey.Convey("When the service is built and routed", func() {
			opts, err := serviceOptions(cfg)
			convey.So(err, convey.ShouldBeNil)
			svc := app.New(opts...)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()
			handler := routes(ctx, cfg, svc)

			convey.Convey("Then the board serves the seeded directory", func() {
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scoreboard", http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "Alice Kim")
				convey.So(svc.GetStats(ctx)["aggregationMode"], convey.ShouldEqual, "mean")
			})

			convey.Convey("Then the documentation routes are mounted", func() {
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.yaml", http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)

				w = httptest.NewRecorder()
				handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusFound)
				convey.So(w.Header().Get("Location"), convey.ShouldEqual, site.DocsPath)
			})
		})
	})

	convey.Convey("Given an aggregation mode that skipped validation", t, func() {
		cfg := config.New(context.Background())
		cfg.AggregationMode = "median"

		_, err := serviceOptions(cfg)
		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("When its context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			convey.Convey("Then it returns", func() {
				convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			})
		})

		convey.Convey("Then a single update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})
	})
}

func TestMetricsOptions(t *testing.T) {
	convey.Convey("Given metrics keys in the configuration", t, func() {
		cfg := config.New(context.Background())
		cfg.MetricsNamespace = "jbtest"
		cfg.MetricsRefreshIntervalS = 3
		cfg.MetricsBucketsMS = "1, 5,25"
		t.Cleanup(func() { metrics.Configure() })

		convey.Convey("When the manager is configured from them", func() {
			opts, err := metricsOptions(cfg)
			convey.So(err, convey.ShouldBeNil)
			metrics.Configure(opts...)
			metrics.UpdateDirectorySize(1, 2, 3)

			convey.Convey("Then names and intervals follow the config", func() {
				convey.So(metrics.RefreshInterval(), convey.ShouldEqual, 3*time.Second)
				families, err := metrics.GetRegistry().Gather()
				convey.So(err, convey.ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				convey.So(names, convey.ShouldContain, "jbtest_scoreboard_judges")
			})
		})

		convey.Convey("When buckets do not increase", func() {
			cfg.MetricsBucketsMS = "5,1"
			_, err := metricsOptions(cfg)
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When a bucket is not a number", func() {
			cfg.MetricsBucketsMS = "1,fast"
			_, err := metricsOptions(cfg)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
