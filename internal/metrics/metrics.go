package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels corrections that resolved their record.
	OutcomeSuccess = "success"
	// OutcomeFailure labels corrections that exhausted their retries.
	OutcomeFailure = "failure"
	// OutcomeSkipped labels corrections skipped by an open circuit breaker.
	OutcomeSkipped = "skipped"
)

const namespace = "mirador_heal"

var (
	errorsCapturedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_captured_total",
			Help:      "Total number of error records captured, partitioned by type and severity.",
		},
		[]string{"type", "severity"},
	)

	errorsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_dropped_total",
			Help:      "Error signals dropped before capture, partitioned by reason.",
		},
		[]string{"reason"},
	)

	flushDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_seconds",
			Help:      "Buffer flush latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	flushFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_failures_total",
			Help:      "Flushes whose records were re-queued after a storage failure or timeout.",
		},
	)

	correctionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Correction attempts partitioned by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	circuitBreakersOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breakers_open",
			Help:      "Number of correction circuit breakers currently open.",
		},
	)

	patternsTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "patterns_tracked",
			Help:      "Number of error patterns held by the analyzer.",
		},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts raised, partitioned by severity.",
		},
		[]string{"severity"},
	)
)

// Register attaches mirador-heal collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		errorsCapturedTotal,
		errorsDroppedTotal,
		flushDurationSeconds,
		flushFailuresTotal,
		correctionsTotal,
		circuitBreakersOpen,
		patternsTracked,
		alertsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCapture counts a captured record.
func ObserveCapture(errType, severity string) {
	errorsCapturedTotal.WithLabelValues(errType, severity).Inc()
}

// ObserveDrop counts a signal dropped by sampling or the ignore list.
func ObserveDrop(reason string) {
	errorsDroppedTotal.WithLabelValues(reason).Inc()
}

// ObserveFlush records a flush duration; failed flushes are also counted.
func ObserveFlush(duration time.Duration, failed bool) {
	if duration < 0 {
		duration = 0
	}
	flushDurationSeconds.Observe(duration.Seconds())
	if failed {
		flushFailuresTotal.Inc()
	}
}

// ObserveCorrection records a correction outcome for a strategy.
func ObserveCorrection(strategy, outcome string) {
	switch outcome {
	case OutcomeSuccess, OutcomeSkipped:
	default:
		outcome = OutcomeFailure
	}
	correctionsTotal.WithLabelValues(strategy, outcome).Inc()
}

// SetOpenBreakers publishes the number of open circuit breakers.
func SetOpenBreakers(n int) {
	circuitBreakersOpen.Set(float64(n))
}

// SetPatternsTracked publishes the analyzer registry size.
func SetPatternsTracked(n int) {
	patternsTracked.Set(float64(n))
}

// ObserveAlert counts a raised alert.
func ObserveAlert(severity string) {
	alertsTotal.WithLabelValues(severity).Inc()
}
