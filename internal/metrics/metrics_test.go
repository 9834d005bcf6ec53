package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveConnectorCall("polygon", true, true, time.Millisecond)
		m.ObserveAtomicRun("confirmed")
		m.ObservePhaseFailure("execute")
		m.ObserveRollback("polygon", false)
		m.ObserveProof("zk", "generate", true)
	})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg, "niev")
	require.NoError(t, err)

	m.ObserveAtomicRun("confirmed")
	m.ObserveAtomicRun("confirmed")
	m.ObserveAtomicRun("rolled_back")
	m.ObserveRollback("bitcoin", false)
	m.ObservePhaseFailure("verify")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AtomicRuns().WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rollbacks().WithLabelValues("bitcoin", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PhaseFailures().WithLabelValues("verify")))

	// a second registration on the same registry fails
	_, err = NewMetrics(reg, "niev")
	assert.Error(t, err)
}
