package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveStage(t *testing.T) {
	m, reg := NewTestManagerAndRegistry()
	m.ObserveStage(StageFetch, time.Second, nil)
	m.ObserveStage(StageFetch, time.Second, errors.New("boom"))
	m.ObserveStage(StageCompute, 2*time.Second, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterRuns.WithLabelValues(StageFetch, StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterRuns.WithLabelValues(StageFetch, StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterRuns.WithLabelValues(StageCompute, StatusOK)))

	n, err := testutil.GatherAndCount(reg, "training_report_test_stage_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMarkSuccessAndNilManager(t *testing.T) {
	m := NewTestManager()
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.MarkSuccess(at)
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(m.GaugeLastSuccess))

	var none *Manager
	assert.NotPanics(t, func() {
		none.ObserveStage(StageCompute, time.Second, nil)
		none.MarkSuccess(at)
	})
}
