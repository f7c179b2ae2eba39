package coordinator

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the coordinator and reconciler.
// A nil *Metrics records nothing.
type Metrics struct {
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	fileFailures  *prometheus.CounterVec
	reconcileOps  *prometheus.CounterVec
	pendingFileOp prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// Collectors already registered under the same name are reused.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "coordinator",
				Name:      "runs_total",
				Help:      "Coordinated writes by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "coordinator",
				Name:      "run_duration_seconds",
				Help:      "Duration of coordinated writes including file flush",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		fileFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "coordinator",
				Name:      "file_failures_total",
				Help:      "Post-commit file operations that failed, by operation and kind",
			},
			[]string{"operation", "kind"},
		),
		reconcileOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "file_ops_total",
				Help:      "Journaled file operations handled by the reconciler, by result",
			},
			[]string{"result"},
		),
		pendingFileOp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "reconciler",
				Name:      "stale_file_ops",
				Help:      "Stale journaled file operations seen by the last sweep",
			},
		),
	}

	if reg == nil {
		return m
	}

	m.runsTotal = register(reg, m.runsTotal).(*prometheus.CounterVec)
	m.runDuration = register(reg, m.runDuration).(*prometheus.HistogramVec)
	m.fileFailures = register(reg, m.fileFailures).(*prometheus.CounterVec)
	m.reconcileOps = register(reg, m.reconcileOps).(*prometheus.CounterVec)
	m.pendingFileOp = register(reg, m.pendingFileOp).(prometheus.Gauge)
	return m
}

func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
	}
	return c
}

func (m *Metrics) observeRun(op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(op, outcome).Inc()
	m.runDuration.WithLabelValues(op).Observe(seconds)
}

func (m *Metrics) fileFailure(op, kind string) {
	if m == nil {
		return
	}
	m.fileFailures.WithLabelValues(op, kind).Inc()
}

func (m *Metrics) reconciled(result string) {
	if m == nil {
		return
	}
	m.reconcileOps.WithLabelValues(result).Inc()
}

func (m *Metrics) stale(n int) {
	if m == nil {
		return
	}
	m.pendingFileOp.Set(float64(n))
}
