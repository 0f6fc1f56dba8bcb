// Package metrics provides Prometheus instrumentation for the recovery core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metric labels
const (
	labelStrategy = "strategy"
	labelOutcome  = "outcome"
	labelType     = "type"
	labelStatus   = "status"
	labelState    = "state"
	labelTool     = "tool"
)

// Metrics tracks correction and recovery activity. All collectors register
// with the supplied registerer; pass prometheus.DefaultRegisterer to expose
// them through the embedding process's promhttp handler.
type Metrics struct {
	CorrectionAttempts   *prometheus.CounterVec
	CorrectionConfidence prometheus.Histogram
	WorkflowsTotal       *prometheus.CounterVec
	WorkflowDuration     prometheus.Histogram
	WorkflowAttempts     prometheus.Histogram
	CircuitTransitions   *prometheus.CounterVec
	EscalationsTotal     *prometheus.CounterVec
	PatternsLearned      prometheus.Counter
}

// New creates a metrics tracker registered against reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CorrectionAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent_recovery",
			Name:      "correction_attempts_total",
			Help:      "Correction attempts by strategy and outcome",
		}, []string{labelStrategy, labelOutcome}),

		CorrectionConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agent_recovery",
			Name:      "correction_confidence",
			Help:      "Confidence scores of winning correction strategies",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),

		WorkflowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent_recovery",
			Name:      "workflows_total",
			Help:      "Completed recovery workflows by type and final status",
		}, []string{labelType, labelStatus}),

		WorkflowDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agent_recovery",
			Name:      "workflow_duration_seconds",
			Help:      "End-to-end recovery workflow duration",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),

		WorkflowAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agent_recovery",
			Name:      "workflow_attempts",
			Help:      "Number of execution attempts per workflow",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),

		CircuitTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent_recovery",
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker state transitions",
		}, []string{labelState}),

		EscalationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent_recovery",
			Name:      "escalations_total",
			Help:      "Workflows escalated to human intervention, by tool",
		}, []string{labelTool}),

		PatternsLearned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agent_recovery",
			Name:      "patterns_learned_total",
			Help:      "Learned recovery pattern upserts",
		}),
	}
}

// RecordCorrection counts one correction attempt outcome. strategy may be
// empty when no strategy applied.
func (m *Metrics) RecordCorrection(strategy string, corrected bool, confidence float64) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if corrected {
		outcome = "applied"
		m.CorrectionConfidence.Observe(confidence)
	}
	if strategy == "" {
		strategy = "none"
	}
	m.CorrectionAttempts.WithLabelValues(strategy, outcome).Inc()
}

// RecordWorkflow counts one completed workflow
func (m *Metrics) RecordWorkflow(workflowType, status string, durationSeconds float64, attempts int) {
	if m == nil {
		return
	}
	m.WorkflowsTotal.WithLabelValues(workflowType, status).Inc()
	m.WorkflowDuration.Observe(durationSeconds)
	m.WorkflowAttempts.Observe(float64(attempts))
}

// RecordCircuitTransition counts a breaker state change (open, half_open, closed)
func (m *Metrics) RecordCircuitTransition(state string) {
	if m == nil {
		return
	}
	m.CircuitTransitions.WithLabelValues(state).Inc()
}

// RecordEscalation counts one escalation to human intervention
func (m *Metrics) RecordEscalation(tool string) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(tool).Inc()
}

// RecordPatternLearned counts one learned-pattern upsert
func (m *Metrics) RecordPatternLearned() {
	if m == nil {
		return
	}
	m.PatternsLearned.Inc()
}
