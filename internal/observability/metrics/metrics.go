// Package metrics registers the process-wide Prometheus metrics for the
// control loop. Init is idempotent; all record helpers are safe no-ops
// before Init so library code never needs a metrics handle.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "waterscada_"

var (
	registerOnce sync.Once

	scadaRequests   *prometheus.CounterVec
	ruleEvaluations *prometheus.CounterVec
	commandsIssued  *prometheus.CounterVec
	overridesActive prometheus.Gauge
	stepLatency     prometheus.Histogram
	stepsTotal      prometheus.Counter
)

// Init registers the control-loop metrics.
func Init() {
	registerOnce.Do(func() {
		scadaRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scada_requests_total",
				Help: "Total PLC requests handled by the coordinator, by role and result",
			},
			[]string{"role", "result"},
		)
		ruleEvaluations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rule_evaluations_total",
				Help: "Total rule-list evaluations by outcome",
			},
			[]string{"outcome"},
		)
		commandsIssued = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_issued_total",
				Help: "Total actuator commands merged per step, by element kind",
			},
			[]string{"kind"},
		)
		overridesActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "overrides_active",
				Help: "Number of currently forced agents",
			},
		)
		stepLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "step_latency_seconds",
				Help:    "Wall-clock duration of one orchestrated simulation step",
				Buckets: prometheus.DefBuckets,
			},
		)
		stepsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "steps_total",
				Help: "Total completed simulation steps",
			},
		)

		prometheus.MustRegister(
			scadaRequests,
			ruleEvaluations,
			commandsIssued,
			overridesActive,
			stepLatency,
			stepsTotal,
		)
	})
}

// IncScadaRequest counts one handled coordinator request.
func IncScadaRequest(role, result string) {
	if role == "" {
		role = "unknown"
	}
	if scadaRequests != nil {
		scadaRequests.WithLabelValues(role, result).Inc()
	}
}

// IncRuleEvaluation counts one rule-list evaluation outcome.
func IncRuleEvaluation(outcome string) {
	if ruleEvaluations != nil {
		ruleEvaluations.WithLabelValues(outcome).Inc()
	}
}

// IncCommandsIssued counts merged actuator commands for a step.
func IncCommandsIssued(kind string, n int) {
	if commandsIssued != nil && n > 0 {
		commandsIssued.WithLabelValues(kind).Add(float64(n))
	}
}

// SetOverridesActive records the current forced-agent count.
func SetOverridesActive(n int) {
	if overridesActive != nil {
		overridesActive.Set(float64(n))
	}
}

// ObserveStep records one completed step and its duration.
func ObserveStep(duration time.Duration) {
	if stepsTotal != nil {
		stepsTotal.Inc()
	}
	if stepLatency != nil {
		stepLatency.Observe(duration.Seconds())
	}
}
