package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lucasjlepore/training-report/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunOnceRunsStagesInOrder(t *testing.T) {
	var order []string
	m := metrics.NewTestManager()
	r := &Runner{
		Fetch:   func(context.Context) error { order = append(order, "fetch"); return nil },
		Compute: func(context.Context) error { order = append(order, "compute"); return nil },
		Metrics: m,
	}
	require.NoError(t, r.RunOnce(context.Background()))
	assert.Equal(t, []string{"fetch", "compute"}, order)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterRuns.WithLabelValues(metrics.StageCompute, metrics.StatusOK)))
	assert.Positive(t, testutil.ToFloat64(m.GaugeLastSuccess))
}

func TestRunOnceFetchFailureSkipsCompute(t *testing.T) {
	computed := false
	m := metrics.NewTestManager()
	core, logs := observer.New(zap.InfoLevel)
	r := &Runner{
		Fetch:   func(context.Context) error { return errors.New("token refresh: 401") },
		Compute: func(context.Context) error { computed = true; return nil },
		Logger:  zap.New(core),
		Metrics: m,
	}
	err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch: token refresh: 401")
	assert.False(t, computed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterRuns.WithLabelValues(metrics.StageFetch, metrics.StatusError)))
	assert.Zero(t, testutil.ToFloat64(m.GaugeLastSuccess))

	failed := logs.FilterMessage("refresh stage failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "fetch", failed[0].ContextMap()["stage"])
	assert.NotEmpty(t, failed[0].ContextMap()["run_id"])
}

func TestRunOnceRequiresStages(t *testing.T) {
	assert.Error(t, (&Runner{}).RunOnce(context.Background()))
}

func TestRunLoopsUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		Fetch: func(context.Context) error {
			if runs.Add(1) == 1 {
				return errors.New("transient")
			}
			return nil
		},
		Compute:  func(context.Context) error { return nil },
		Interval: 5 * time.Millisecond,
	}

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"a failed run must not stop the loop")
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}
