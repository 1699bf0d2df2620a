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
	"go.uber.org/zap"

	"github.com/lucasjlepore/training-report/config"
	"github.com/lucasjlepore/training-report/dashboard"
	"github.com/lucasjlepore/training-report/logging"
	"github.com/lucasjlepore/training-report/metrics"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a TOML config file")
		addr       = flag.String("addr", "", "Listen address override (default from config, :8501)")
		derived    = flag.String("derived", "", "Derived table to serve (default from config)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [--config report.toml] [--addr :8501]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	if *addr != "" {
		cfg.Dashboard.Addr = *addr
	}
	if *derived == "" {
		*derived = cfg.DerivedTablePath()
	}
	logger := logging.FromConfig(cfg.Logging, "dashboard")
	defer logger.Sync()

	server := dashboard.NewServer(dashboard.Options{
		DerivedPath: *derived,
		Logger:      logger,
		Metrics:     metrics.NewManager("training_report", "dashboard", prometheus.DefaultRegisterer),
	})
	srv := &http.Server{
		Addr:              cfg.Dashboard.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dashboard listening", zap.String("addr", srv.Addr), zap.String("derived", *derived))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			fail(err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fail(err)
		}
		logger.Info("dashboard stopped")
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "dashboard failed: %v\n", err)
	os.Exit(1)
}
