package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRun(Run{Algorithm: "LD_MMA", Status: "XTOL_REACHED", Evaluations: 12, Hits: 30, Misses: 12, Duration: time.Millisecond})
	m.ObserveRun(Run{Algorithm: "LD_MMA", Status: "XTOL_REACHED", Evaluations: 8, Hits: 10, Misses: 8})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("LD_MMA", "XTOL_REACHED")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.cacheMisses))

	n, err := testutil.GatherAndCount(reg, "nlpbridge_solver_evaluations")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJobs(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.JobStarted()
	m.JobStarted()
	m.JobFinished("done")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeJobs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("done")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRun(Run{})
		m.JobStarted()
		m.JobFinished("failed")
	})
}
