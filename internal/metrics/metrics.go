package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects counters for connector calls and atomic runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	connectorCalls    *prometheus.CounterVec
	connectorDuration *prometheus.HistogramVec
	atomicRuns        *prometheus.CounterVec
	phaseFailures     *prometheus.CounterVec
	rollbacks         *prometheus.CounterVec
	proofs            *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		connectorCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "connector",
				Name:      "calls_total",
				Help:      "Total number of chain connector calls",
			},
			[]string{"chain", "kind", "status"},
		),
		connectorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "connector",
				Name:      "call_duration_seconds",
				Help:      "Chain connector call duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"chain"},
		),
		atomicRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "atomic",
				Name:      "runs_total",
				Help:      "Total number of atomic runs by final status",
			},
			[]string{"status"},
		),
		phaseFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "atomic",
				Name:      "phase_failures_total",
				Help:      "Total number of atomic runs that failed in a phase",
			},
			[]string{"phase"},
		),
		rollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "atomic",
				Name:      "rollbacks_total",
				Help:      "Total number of compensating calls by outcome",
			},
			[]string{"chain", "outcome"},
		),
		proofs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proof",
				Name:      "operations_total",
				Help:      "Total number of proof generations and verifications",
			},
			[]string{"layer", "op", "status"},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.connectorCalls, m.connectorDuration, m.atomicRuns,
			m.phaseFailures, m.rollbacks, m.proofs,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// ObserveConnectorCall records one connector call
func (m *Metrics) ObserveConnectorCall(chain string, write bool, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	kind := "read"
	if write {
		kind = "write"
	}
	m.connectorCalls.WithLabelValues(chain, kind, status(ok)).Inc()
	m.connectorDuration.WithLabelValues(chain).Observe(elapsed.Seconds())
}

// ObserveAtomicRun records the final status of an atomic run
func (m *Metrics) ObserveAtomicRun(status string) {
	if m == nil {
		return
	}
	m.atomicRuns.WithLabelValues(status).Inc()
}

// ObservePhaseFailure records a failed phase
func (m *Metrics) ObservePhaseFailure(phase string) {
	if m == nil {
		return
	}
	m.phaseFailures.WithLabelValues(phase).Inc()
}

// ObserveRollback records one compensating call
func (m *Metrics) ObserveRollback(chain string, ok bool) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(chain, status(ok)).Inc()
}

// ObserveProof records a proof generation or verification
func (m *Metrics) ObserveProof(layer, op string, ok bool) {
	if m == nil {
		return
	}
	m.proofs.WithLabelValues(layer, op, status(ok)).Inc()
}

// AtomicRuns exposes the run counter
func (m *Metrics) AtomicRuns() *prometheus.CounterVec { return m.atomicRuns }

// Rollbacks exposes the rollback counter
func (m *Metrics) Rollbacks() *prometheus.CounterVec { return m.rollbacks }

// PhaseFailures exposes the phase failure counter
func (m *Metrics) PhaseFailures() *prometheus.CounterVec { return m.phaseFailures }

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
