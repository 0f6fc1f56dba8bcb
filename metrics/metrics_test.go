package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCorrection(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordCorrection("type_mismatch", true, 0.9)
	m.RecordCorrection("type_mismatch", true, 0.7)
	m.RecordCorrection("", false, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CorrectionAttempts.WithLabelValues("type_mismatch", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorrectionAttempts.WithLabelValues("none", "rejected")))
}

func TestRecordWorkflow(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordWorkflow("auto_retry", "successful", 1.5, 2)
	m.RecordWorkflow("auto_retry", "failed", 0.2, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkflowsTotal.WithLabelValues("auto_retry", "successful")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkflowsTotal.WithLabelValues("auto_retry", "failed")))
}

func TestRecordCircuitAndEscalation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordCircuitTransition("open")
	m.RecordCircuitTransition("closed")
	m.RecordEscalation("deploy")
	m.RecordPatternLearned()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitTransitions.WithLabelValues("open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EscalationsTotal.WithLabelValues("deploy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PatternsLearned))
}

// A nil tracker must be safe to call so instrumentation stays optional
func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCorrection("x", true, 1)
		m.RecordWorkflow("x", "y", 1, 1)
		m.RecordCircuitTransition("open")
		m.RecordEscalation("tool")
		m.RecordPatternLearned()
	})
}
