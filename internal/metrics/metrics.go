// Package metrics exposes the Prometheus instrumentation named in
// SPEC_FULL.md's C17: retry counters, integration outcomes, and scheduler
// queue depth. Grounded on the retrieval pack's one Prometheus consumer
// (driftlessaf-go-driftlessaf/agents/evals/metrics.go): package-level
// promauto vectors registered once at import time, with small recording
// functions wrapping them so callers never touch a prometheus.* type
// directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workItemAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbot_work_item_attempts_total",
			Help: "Work-item execution attempts, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	workItemRetriesExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbot_work_item_retries_exhausted_total",
			Help: "Work items whose retry budget was exhausted, by kind.",
		},
		[]string{"kind"},
	)

	schedulerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reviewbot_scheduler_queue_depth",
			Help: "Number of work items currently buffered in the scheduler's queue.",
		},
	)

	integrationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbot_integration_outcomes_total",
			Help: "Integration/sponsor protocol runs, by outcome.",
		},
		[]string{"outcome"},
	)

	commandDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbot_command_dispatches_total",
			Help: "Slash-command invocations dispatched, by command name and outcome.",
		},
		[]string{"command", "outcome"},
	)
)

// outcome labels shared across the counters above.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeRetried = "retried"
)

// ObserveWorkItemAttempt records one scheduler attempt at running a work
// item of the given kind ("pr" or "commit").
func ObserveWorkItemAttempt(kind, outcome string) {
	workItemAttempts.WithLabelValues(kind, outcome).Inc()
}

// ObserveRetriesExhausted records a work item whose retry budget ran out.
func ObserveRetriesExhausted(kind string) {
	workItemRetriesExhausted.WithLabelValues(kind).Inc()
}

// SetQueueDepth reports the scheduler's current buffered queue length.
func SetQueueDepth(depth int) {
	schedulerQueueDepth.Set(float64(depth))
}

// ObserveIntegrationOutcome records one C7 protocol run, outcome being
// "integrated", "sponsored", "recovered", or "failed".
func ObserveIntegrationOutcome(outcome string) {
	integrationOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveCommandDispatch records one dispatched slash-command invocation.
func ObserveCommandDispatch(command, outcome string) {
	commandDispatches.WithLabelValues(command, outcome).Inc()
}
