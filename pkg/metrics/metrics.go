package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PoolSize is the current ledger size (busy + idle) per function.
	PoolSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_pool_size",
			Help: "Current number of workers credited to a function's pool",
		},
		[]string{"function"},
	)

	// PoolIdle is the current idle-queue depth per function.
	PoolIdle = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_pool_idle",
			Help: "Current number of idle workers in a function's pool",
		},
		[]string{"function"},
	)

	// BreakerState is 0=closed, 1=open, 2=half-open, per function.
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_breaker_state",
			Help: "Circuit breaker state per function (0=closed, 1=open, 2=half-open)",
		},
		[]string{"function"},
	)

	// InvocationsTotal counts completed invocations by function and outcome.
	InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_invocations_total",
			Help: "Total invocations by function and outcome",
		},
		[]string{"function", "outcome"},
	)

	// InvocationDuration times the full invoke procedure, acquire through release.
	InvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_invocation_duration_seconds",
			Help:    "Invocation latency by function",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"function"},
	)

	// AcquireDuration times pool.acquire, including any provisioning it triggers.
	AcquireDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_acquire_duration_seconds",
			Help:    "Pool acquire latency by function",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"function"},
	)

	// ContainersTotal tracks containers the Orchestrator currently knows about, by state.
	ContainersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_containers_total",
			Help: "Containers tracked by the orchestrator, by actual state",
		},
		[]string{"state"},
	)

	// ContainersCreatedTotal counts containers created via ensure/provision.
	ContainersCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_containers_created_total",
			Help: "Containers created, by function",
		},
		[]string{"function"},
	)

	// ContainersReapedTotal counts containers removed by the idle reaper.
	ContainersReapedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_containers_reaped_total",
			Help: "Containers removed by the idle reaper, by function",
		},
		[]string{"function"},
	)

	// ReadinessDuration times the readiness-probe poll loop.
	ReadinessDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_readiness_duration_seconds",
			Help:    "Time spent polling a container's readiness endpoint",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"function"},
	)

	// ReconciliationDuration times one idle-reaper sweep.
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_reconciliation_duration_seconds",
			Help:    "Duration of one reaper sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReconciliationCyclesTotal counts completed reaper sweeps.
	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_reconciliation_cycles_total",
			Help: "Total number of reaper sweeps performed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PoolSize,
		PoolIdle,
		BreakerState,
		InvocationsTotal,
		InvocationDuration,
		AcquireDuration,
		ContainersTotal,
		ContainersCreatedTotal,
		ContainersReapedTotal,
		ReadinessDuration,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
	)
}

// Handler returns the Prometheus scrape handler, mounted at /metrics on
// both the Gateway and the Orchestrator.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times a single operation for later observation against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time against an un-labelled histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time against a labelled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
