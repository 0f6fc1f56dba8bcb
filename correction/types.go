// Package correction repairs malformed tool-call parameters. A fixed set of
// strategies analyzes a failed call and proposes a corrected parameter set
// with a confidence score; the engine arbitrates between them, enforces
// per-key attempt ceilings and computes retry backoff.
package correction

import (
	"context"
	"errors"
	"time"

	"agent-recovery/types"
)

// ErrCorrectionDisabled is returned by AttemptCorrection when the engine is
// disabled via configuration.
var ErrCorrectionDisabled = errors.New("correction: auto-correction is disabled")

// ErrAttemptNotFound is returned by ReportCorrectionResult for unknown IDs
var ErrAttemptNotFound = errors.New("correction: attempt not found")

// Strategy type names, in registry order. Confidence ties between
// strategies break in favor of the earlier entry.
const (
	TypeMissingRequired      = "missing_required"
	TypeWrongParameterNames  = "wrong_parameter_names"
	TypeTypeMismatch         = "type_mismatch"
	TypePatternBased         = "pattern_based"
	TypeJSONStringConversion = "json_string_conversion"
)

// Call bundles everything a strategy may inspect about a failed tool call
type Call struct {
	AgentID      string
	ChannelID    string
	ToolName     string
	Parameters   map[string]interface{}
	ErrorMessage string
	Schema       *types.Tool // optional
}

// AnalysisResult is a strategy's verdict on a failed call
type AnalysisResult struct {
	CanCorrect          bool
	Confidence          float64
	SuggestedCorrection map[string]interface{}
	Reasoning           string
}

// Strategy is a pure analysis function over a failed call. Implementations
// must be stateless and deterministic for a given call.
type Strategy interface {
	Type() string
	Analyze(ctx context.Context, call Call) (AnalysisResult, error)
}

// CorrectionAttempt is the audit record for one correction attempt. It is
// mutated exactly once, by ReportCorrectionResult, and immutable afterward.
type CorrectionAttempt struct {
	AttemptID           string                 `json:"attempt_id"`
	Timestamp           time.Time              `json:"timestamp"`
	AgentID             string                 `json:"agent_id"`
	ChannelID           string                 `json:"channel_id"`
	ToolName            string                 `json:"tool_name"`
	OriginalParameters  map[string]interface{} `json:"original_parameters"`
	CorrectedParameters map[string]interface{} `json:"corrected_parameters"`
	Strategy            string                 `json:"strategy"`
	Confidence          float64                `json:"confidence"`
	Successful          bool                   `json:"successful"`
	ErrorMessage        string                 `json:"error_message,omitempty"`
	RecoveryTimeMs      int64                  `json:"recovery_time_ms,omitempty"`
}

// CorrectionResult is what AttemptCorrection hands back to the caller
type CorrectionResult struct {
	Corrected           bool                   `json:"corrected"`
	CorrectedParameters map[string]interface{} `json:"corrected_parameters,omitempty"`
	Strategy            string                 `json:"strategy,omitempty"`
	Confidence          float64                `json:"confidence,omitempty"`
	AttemptID           string                 `json:"attempt_id,omitempty"`
	ShouldRetry         bool                   `json:"should_retry"`
	RetryDelay          time.Duration          `json:"retry_delay,omitempty"`
}

// CorrectionStats aggregates attempt history across all keys
type CorrectionStats struct {
	TotalAttempts      int            `json:"total_attempts"`
	SuccessfulAttempts int            `json:"successful_attempts"`
	FailedAttempts     int            `json:"failed_attempts"`
	SuccessRate        float64        `json:"success_rate"`
	ByStrategy         map[string]int `json:"by_strategy"`
	ByTool             map[string]int `json:"by_tool"`
	AverageConfidence  float64        `json:"average_confidence"`
}

// cloneParams makes a shallow copy of a parameter map. Strategies never
// mutate the caller's map.
func cloneParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
