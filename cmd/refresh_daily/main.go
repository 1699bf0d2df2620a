package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lucasjlepore/training-report/config"
	"github.com/lucasjlepore/training-report/ingest"
	"github.com/lucasjlepore/training-report/logging"
	"github.com/lucasjlepore/training-report/metrics"
	"github.com/lucasjlepore/training-report/pipeline"
	"github.com/lucasjlepore/training-report/refresh"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to a TOML config file")
		once        = flag.Bool("once", false, "Run fetch and compute a single time and exit")
		interval    = flag.Duration("interval", 0, "Refresh interval override (default from config, 4h)")
		metricsAddr = flag.String("metrics-addr", "", "Serve prometheus metrics on this address while looping")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [--config report.toml] [--once] [--interval 4h] [--metrics-addr :9100]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	if *interval > 0 {
		cfg.Refresh.Interval.Duration = *interval
	}
	logger := logging.FromConfig(cfg.Logging, "refresh_daily")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewManager("training_report", "refresh", prometheus.DefaultRegisterer)
	runner := &refresh.Runner{
		Fetch: func(ctx context.Context) error {
			// credentials are re-resolved each run so a rotated token is picked up
			fetcher, err := ingest.NewFetcher(cfg, os.LookupEnv, logger, m)
			if err != nil {
				return err
			}
			_, err = fetcher.Run(ctx)
			return err
		},
		Compute: func(context.Context) error {
			_, err := pipeline.Run(pipeline.Options{
				RawPath: cfg.RawTablePath(),
				OutPath: cfg.DerivedTablePath(),
				Format:  cfg.Derived.Format,
				Params:  cfg.Athlete,
				Logger:  logger,
				Metrics: m,
			})
			return err
		},
		Interval: cfg.Refresh.Interval.Duration,
		Logger:   logger,
		Metrics:  m,
	}

	if *once {
		if err := runner.RunOnce(ctx); err != nil {
			fail(err)
		}
		return
	}

	if *metricsAddr != "" {
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("refresh loop starting", zap.Duration("interval", runner.Interval))
	if err := runner.Run(ctx); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "refresh_daily failed: %v\n", err)
	os.Exit(1)
}
