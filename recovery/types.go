// Package recovery drives the stateful retry/backoff/escalation process
// around the correction engine: it classifies a failure, consults the
// circuit breaker, retries the execution callback with corrected
// parameters and escalates to a human when repair keeps failing.
package recovery

import (
	"context"
	"errors"
	"time"
)

// ErrRecoveryDisabled is returned by InitiateRecovery when the workflow
// engine is disabled via configuration.
var ErrRecoveryDisabled = errors.New("recovery: workflow engine is disabled")

// ExecuteFunc re-invokes the failed tool with (possibly corrected)
// parameters. Its error return is the only failure signal the workflow
// observes.
type ExecuteFunc func(ctx context.Context, parameters map[string]interface{}) (interface{}, error)

// WorkflowType classifies how a failure will be handled
type WorkflowType string

const (
	WorkflowAutoRetry       WorkflowType = "auto_retry"
	WorkflowPatternLearning WorkflowType = "pattern_learning"
	WorkflowFallbackTool    WorkflowType = "fallback_tool"
	WorkflowEscalateToHuman WorkflowType = "escalate_to_human"
	WorkflowCircuitBreaker  WorkflowType = "circuit_breaker"
	WorkflowCompleteFailure WorkflowType = "complete_failure"
)

// Status is the workflow state. Transitions only move forward: a terminal
// status is never replaced by initiated or in_progress.
type Status string

const (
	StatusInitiated         Status = "initiated"
	StatusInProgress        Status = "in_progress"
	StatusCorrectionApplied Status = "correction_applied"
	StatusSuccessful        Status = "successful"
	StatusEscalated         Status = "escalated"
	StatusFailed            Status = "failed"
	StatusCircuitOpen       Status = "circuit_open"
)

// terminal reports whether a status ends the workflow
func (s Status) terminal() bool {
	switch s {
	case StatusSuccessful, StatusEscalated, StatusFailed, StatusCircuitOpen:
		return true
	}
	return false
}

// Attempt records one execution try within a workflow. Never mutated after
// creation.
type Attempt struct {
	AttemptID           string                 `json:"attempt_id"`
	Timestamp           time.Time              `json:"timestamp"`
	Strategy            string                 `json:"strategy"`
	Parameters          map[string]interface{} `json:"parameters"`
	Success             bool                   `json:"success"`
	Error               string                 `json:"error,omitempty"`
	ExecutionTimeMs     int64                  `json:"execution_time_ms"`
	CorrectionAttemptID string                 `json:"correction_attempt_id,omitempty"`
}

// Outcome summarizes how a workflow ended
type Outcome struct {
	Success           bool        `json:"success"`
	Result            interface{} `json:"result,omitempty"`
	Error             string      `json:"error,omitempty"`
	TotalRecoveryTime int64       `json:"total_recovery_time_ms"`
}

// Workflow is the full record of one recovery process
type Workflow struct {
	WorkflowID         string                 `json:"workflow_id"`
	AgentID            string                 `json:"agent_id"`
	ChannelID          string                 `json:"channel_id"`
	ToolName           string                 `json:"tool_name"`
	OriginalParameters map[string]interface{} `json:"original_parameters"`
	OriginalError      string                 `json:"original_error"`
	WorkflowType       WorkflowType           `json:"workflow_type"`
	Status             Status                 `json:"status"`
	StartTime          time.Time              `json:"start_time"`
	EndTime            time.Time              `json:"end_time,omitempty"`
	Attempts           []Attempt              `json:"attempts"`
	FinalOutcome       *Outcome               `json:"final_outcome,omitempty"`
	EscalationReason   string                 `json:"escalation_reason,omitempty"`
	LearnedPatterns    []string               `json:"learned_patterns,omitempty"`
}

// setStatus enforces forward-only transitions
func (w *Workflow) setStatus(next Status) {
	if w.Status.terminal() {
		return
	}
	w.Status = next
}

// Stats aggregates workflow activity for the engine
type Stats struct {
	TotalWorkflows     int                  `json:"total_workflows"`
	ActiveWorkflows    int                  `json:"active_workflows"`
	ByStatus           map[Status]int       `json:"by_status"`
	ByType             map[WorkflowType]int `json:"by_type"`
	LearnedPatterns    int                  `json:"learned_patterns"`
	AverageRecoveryMs  float64              `json:"average_recovery_ms"`
	EscalatedWorkflows int                  `json:"escalated_workflows"`
}
