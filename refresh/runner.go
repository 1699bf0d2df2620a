// Package refresh runs the fetch and compute stages in order, once or on a
// fixed interval.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucasjlepore/training-report/metrics"
)

// DefaultInterval applies when Runner.Interval is not positive.
const DefaultInterval = 4 * time.Hour

// Stage is one step of a refresh.
type Stage func(ctx context.Context) error

// Runner chains the fetch and compute stages.
type Runner struct {
	Fetch    Stage
	Compute  Stage
	Interval time.Duration
	Logger   *zap.Logger
	Metrics  *metrics.Manager

	now func() time.Time
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// RunOnce fetches then computes. The first failing stage ends the run and
// its error is returned; compute never runs over a failed fetch.
func (r *Runner) RunOnce(ctx context.Context) error {
	if r.Fetch == nil || r.Compute == nil {
		return errors.New("refresh runner needs both fetch and compute stages")
	}
	runID := uuid.NewString()
	log := r.logger().With(zap.String("run_id", runID))
	log.Info("refresh started")

	for _, s := range []struct {
		name string
		run  Stage
	}{
		{metrics.StageFetch, r.Fetch},
		{metrics.StageCompute, r.Compute},
	} {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := r.clock()
		err := s.run(ctx)
		took := r.clock().Sub(start)
		r.Metrics.ObserveStage(s.name, took, err)
		if err != nil {
			log.Error("refresh stage failed", zap.String("stage", s.name), zap.Duration("took", took), zap.Error(err))
			return fmt.Errorf("%s: %w", s.name, err)
		}
		log.Info("refresh stage done", zap.String("stage", s.name), zap.Duration("took", took))
	}

	r.Metrics.MarkSuccess(r.clock())
	log.Info("refresh finished")
	return nil
}

// Run refreshes immediately and then on every tick until ctx is done. Failed
// runs are logged and the loop keeps going.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := r.logger()

	if err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		log.Warn("refresh run failed, will retry on next tick", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("refresh loop stopped")
			return nil
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				log.Warn("refresh run failed, will retry on next tick", zap.Error(err))
			}
		}
	}
}
