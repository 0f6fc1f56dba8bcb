package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"agent-recovery/circuitbreaker"
	"agent-recovery/config"
	"agent-recovery/correction"
	"agent-recovery/events"
	"agent-recovery/internal"
	"agent-recovery/logger"
	"agent-recovery/metrics"
	"agent-recovery/types"
)

// Engine is the recovery workflow engine. It owns the correction engine,
// the circuit breaker, learned patterns and workflow history, and it
// serializes workflows per (agent, channel, tool) key so at most one is in
// flight for a key at a time.
type Engine struct {
	mu       sync.Mutex
	cfg      config.RecoveryConfig
	active   map[string]*Workflow
	history  map[types.BreakerKey][]*Workflow
	keyLocks map[types.CorrectionKey]*sync.Mutex

	correction      *correction.Engine
	breaker         *circuitbreaker.Breaker
	monitorInterval time.Duration
	patterns        *patternBook
	schemas         types.SchemaRegistry

	bus       *events.Bus
	obsLogger *logger.ObservabilityLogger
	metrics   *metrics.Metrics
	wait      func(ctx context.Context, d time.Duration) error
}

// NewEngine builds a workflow engine together with its correction engine
// and circuit breaker. store may be nil (pattern-backed strategies then
// decline); schemas may be nil (strategies receive no schema).
func NewEngine(cfg *config.Config, store types.PatternStore) *Engine {
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}

	e := &Engine{
		cfg:        cfg.Recovery,
		active:     make(map[string]*Workflow),
		history:    make(map[types.BreakerKey][]*Workflow),
		keyLocks:   make(map[types.CorrectionKey]*sync.Mutex),
		correction: correction.NewEngine(cfg.Correction, store),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Enabled:          cfg.CircuitBreaker.Enabled,
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			Timeout:          cfg.CircuitBreaker.Timeout,
		}),
		monitorInterval: cfg.CircuitBreaker.MonitorInterval,
		patterns:        newPatternBook(),
		bus:             events.NewBus(64),
		obsLogger:       logger.NewDiscardLogger(),
		wait:            defaultWait,
	}
	e.correction.SetEventBus(e.bus)
	return e
}

func defaultWait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Correction exposes the owned correction engine
func (e *Engine) Correction() *correction.Engine { return e.correction }

// Breaker exposes the owned circuit breaker
func (e *Engine) Breaker() *circuitbreaker.Breaker { return e.breaker }

// Events exposes the engine's event bus
func (e *Engine) Events() *events.Bus { return e.bus }

// Subscribe returns a receive channel for workflow lifecycle events
func (e *Engine) Subscribe() <-chan events.Event { return e.bus.Subscribe() }

// SetObservabilityLogger sets the structured logger on the engine and its
// owned components.
func (e *Engine) SetObservabilityLogger(obsLogger *logger.ObservabilityLogger) {
	if obsLogger == nil {
		return
	}
	e.obsLogger = obsLogger
	e.correction.SetObservabilityLogger(obsLogger)
	e.breaker.SetObservabilityLogger(obsLogger)
}

// SetMetrics wires Prometheus instrumentation through the engine and its
// owned components; nil disables it.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
	e.correction.SetMetrics(m)
	e.breaker.SetMetrics(m)
}

// SetSchemaRegistry lets the engine resolve tool schemas for the
// correction strategies without callers passing one per recovery.
func (e *Engine) SetSchemaRegistry(registry types.SchemaRegistry) {
	e.schemas = registry
}

// SetWaiter overrides inter-attempt waiting. Tests only.
func (e *Engine) SetWaiter(wait func(ctx context.Context, d time.Duration) error) {
	if wait != nil {
		e.wait = wait
	}
}

// GetConfig returns a copy of the current configuration
func (e *Engine) GetConfig() config.RecoveryConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// UpdateConfig applies a partial configuration update
func (e *Engine) UpdateConfig(update config.RecoveryUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = update.Apply(e.cfg)
}

// mutateWorkflow applies fn under the engine mutex. Every field write to a
// workflow that is visible through GetActiveWorkflows must go through here
// so snapshot copies never observe a torn update.
func (e *Engine) mutateWorkflow(workflow *Workflow, fn func(w *Workflow)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(workflow)
}

// lockKey serializes workflows sharing a (agent, channel, tool) key
func (e *Engine) lockKey(key types.CorrectionKey) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, exists := e.keyLocks[key]
	if !exists {
		lock = &sync.Mutex{}
		e.keyLocks[key] = lock
	}
	return lock
}

// InitiateRecovery runs a full recovery workflow for a failed tool call
// and returns the completed workflow record. The only error it returns is
// ErrRecoveryDisabled; execution failures end up in the workflow's status
// and final outcome, never as a returned error.
func (e *Engine) InitiateRecovery(ctx context.Context, agentID, channelID, toolName string,
	originalParams map[string]interface{}, originalError string, executeFn ExecuteFunc) (*Workflow, error) {

	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()
	if !cfg.Enabled {
		return nil, ErrRecoveryDisabled
	}

	key := types.CorrectionKey{AgentID: agentID, ChannelID: channelID, ToolName: toolName}
	breakerKey := types.BreakerKey{AgentID: agentID, ToolName: toolName}

	lock := e.lockKey(key)
	lock.Lock()
	defer lock.Unlock()

	workflow := &Workflow{
		WorkflowID:         "wf-" + uuid.NewString(),
		AgentID:            agentID,
		ChannelID:          channelID,
		ToolName:           toolName,
		OriginalParameters: copyParams(originalParams),
		OriginalError:      originalError,
		Status:             StatusInitiated,
		StartTime:          time.Now(),
	}
	ctx = internal.WithWorkflowID(ctx, workflow.WorkflowID)
	requestID := internal.GetRequestID(ctx)

	// Open circuit: refuse without attempting anything
	if e.breaker.IsOpen(breakerKey) {
		workflow.WorkflowType = WorkflowCircuitBreaker
		workflow.setStatus(StatusCircuitOpen)
		workflow.EndTime = time.Now()
		workflow.FinalOutcome = &Outcome{
			Success:           false,
			Error:             "circuit breaker open for " + breakerKey.String(),
			TotalRecoveryTime: 0,
		}
		e.persist(workflow)
		e.publish(events.TypeCircuitOpened, workflow, map[string]interface{}{
			"breaker_key": breakerKey.String(),
		})
		e.metrics.RecordWorkflow(string(workflow.WorkflowType), string(workflow.Status), 0, 0)
		e.obsLogger.Warn(logger.ComponentRecoveryWorkflow, logger.CategoryBlocked, requestID,
			"Recovery refused, circuit open", map[string]interface{}{
				"workflow_id": workflow.WorkflowID,
				"breaker_key": breakerKey.String(),
			})
		return workflow, nil
	}

	workflow.WorkflowType = e.determineWorkflowType(toolName, originalError)

	e.mu.Lock()
	e.active[workflow.WorkflowID] = workflow
	e.mu.Unlock()

	e.publish(events.TypeWorkflowInitiated, workflow, map[string]interface{}{
		"workflow_type":  string(workflow.WorkflowType),
		"original_error": originalError,
	})
	e.obsLogger.Info(logger.ComponentRecoveryWorkflow, logger.CategoryRecovery, requestID,
		"Recovery workflow initiated", map[string]interface{}{
			"workflow_id":   workflow.WorkflowID,
			"workflow_type": string(workflow.WorkflowType),
			"tool_name":     toolName,
		})

	e.mutateWorkflow(workflow, func(w *Workflow) {
		w.setStatus(StatusInProgress)
	})

	switch workflow.WorkflowType {
	case WorkflowPatternLearning:
		e.runPatternLearning(ctx, cfg, workflow, executeFn)
	case WorkflowAutoRetry:
		e.runAutoRetry(ctx, cfg, workflow, executeFn)
	case WorkflowFallbackTool:
		// No fallback-tool implementation exists; always escalate
		e.runEscalation(ctx, workflow, "fallback tool workflow not implemented")
	default:
		e.runEscalation(ctx, workflow, "error not recoverable by automatic correction")
	}

	e.completeWorkflow(ctx, workflow, breakerKey)
	return workflow, nil
}

// determineWorkflowType classifies the failure into a workflow
func (e *Engine) determineWorkflowType(toolName, originalError string) WorkflowType {
	e.mu.Lock()
	learningEnabled := e.cfg.PatternLearningEnabled
	e.mu.Unlock()

	if learningEnabled {
		key := PatternKey{ToolName: toolName, Category: CategorizeError(originalError)}
		if _, known := e.patterns.lookup(key); known {
			return WorkflowPatternLearning
		}
	}
	if looksLikeValidationError(originalError) {
		return WorkflowAutoRetry
	}
	return WorkflowEscalateToHuman
}

// runAutoRetry drives the correction engine attempt-by-attempt,
// re-invoking executeFn between corrections.
func (e *Engine) runAutoRetry(ctx context.Context, cfg config.RecoveryConfig, workflow *Workflow, executeFn ExecuteFunc) {
	requestID := internal.GetRequestID(ctx)
	currentParams := copyParams(workflow.OriginalParameters)
	var schema *types.Tool
	if e.schemas != nil {
		schema, _ = e.schemas.GetSchema(workflow.ToolName)
	}

	for attemptNumber := 1; attemptNumber <= cfg.MaxRecoveryAttempts; attemptNumber++ {
		strategyName := "none"
		correctionAttemptID := ""

		corrResult, corrErr := e.correction.AttemptCorrection(ctx,
			workflow.AgentID, workflow.ChannelID, workflow.ToolName,
			currentParams, workflow.OriginalError, schema)
		switch {
		case corrErr != nil:
			// Disabled correction engine means retrying uncorrected
			e.obsLogger.Debug(logger.ComponentRecoveryWorkflow, logger.CategoryDebug, requestID,
				"Correction unavailable for attempt", map[string]interface{}{
					"workflow_id": workflow.WorkflowID,
					"attempt":     attemptNumber,
					"error":       corrErr.Error(),
				})
		case corrResult.Corrected:
			currentParams = corrResult.CorrectedParameters
			strategyName = corrResult.Strategy
			correctionAttemptID = corrResult.AttemptID
			e.mutateWorkflow(workflow, func(w *Workflow) {
				w.setStatus(StatusCorrectionApplied)
			})
		}

		started := time.Now()
		result, execErr := e.execute(ctx, cfg, executeFn, currentParams)
		elapsedMs := time.Since(started).Milliseconds()

		attempt := Attempt{
			AttemptID:           uuid.NewString(),
			Timestamp:           started,
			Strategy:            strategyName,
			Parameters:          copyParams(currentParams),
			Success:             execErr == nil,
			ExecutionTimeMs:     elapsedMs,
			CorrectionAttemptID: correctionAttemptID,
		}
		if execErr != nil {
			attempt.Error = execErr.Error()
		}
		e.mutateWorkflow(workflow, func(w *Workflow) {
			w.Attempts = append(w.Attempts, attempt)
		})
		e.publish(events.TypeWorkflowAttempt, workflow, map[string]interface{}{
			"attempt_number": attemptNumber,
			"strategy":       strategyName,
			"success":        execErr == nil,
		})

		if execErr == nil {
			e.mutateWorkflow(workflow, func(w *Workflow) {
				w.setStatus(StatusSuccessful)
				w.FinalOutcome = &Outcome{
					Success:           true,
					Result:            result,
					TotalRecoveryTime: time.Since(w.StartTime).Milliseconds(),
				}
			})
			if correctionAttemptID != "" {
				_ = e.correction.ReportCorrectionResult(ctx, correctionAttemptID, true, "", elapsedMs)
			}
			e.learnFromSuccess(cfg, workflow, strategyName, elapsedMs)
			return
		}

		if correctionAttemptID != "" {
			_ = e.correction.ReportCorrectionResult(ctx, correctionAttemptID, false, execErr.Error(), elapsedMs)
		}
		e.obsLogger.Warn(logger.ComponentRecoveryWorkflow, logger.CategoryWarning, requestID,
			"Recovery attempt failed", map[string]interface{}{
				"workflow_id": workflow.WorkflowID,
				"attempt":     attemptNumber,
				"strategy":    strategyName,
				"error":       execErr.Error(),
			})

		// Linear backoff between attempts, separate from the correction
		// engine's own exponential retry delay.
		if attemptNumber < cfg.MaxRecoveryAttempts {
			if err := e.wait(ctx, cfg.RetryInterval*time.Duration(attemptNumber)); err != nil {
				break
			}
		}
	}

	if len(workflow.Attempts) >= cfg.EscalationThreshold {
		e.mutateWorkflow(workflow, func(w *Workflow) {
			w.WorkflowType = WorkflowEscalateToHuman
		})
		e.runEscalation(ctx, workflow, "max recovery attempts exhausted")
		return
	}
	e.mutateWorkflow(workflow, func(w *Workflow) {
		w.setStatus(StatusFailed)
		w.FinalOutcome = &Outcome{
			Success:           false,
			Error:             "max recovery attempts exhausted",
			TotalRecoveryTime: time.Since(w.StartTime).Milliseconds(),
		}
	})
}

// runPatternLearning replays the original parameters on the strength of a
// learned pattern; a miss degrades to the auto-retry workflow.
func (e *Engine) runPatternLearning(ctx context.Context, cfg config.RecoveryConfig, workflow *Workflow, executeFn ExecuteFunc) {
	requestID := internal.GetRequestID(ctx)
	key := PatternKey{ToolName: workflow.ToolName, Category: CategorizeError(workflow.OriginalError)}

	pattern, known := e.patterns.lookup(key)
	if !known {
		e.mutateWorkflow(workflow, func(w *Workflow) {
			w.WorkflowType = WorkflowAutoRetry
		})
		e.runAutoRetry(ctx, cfg, workflow, executeFn)
		return
	}

	strategyName := "learned_pattern_" + pattern.SuccessfulStrategy
	started := time.Now()
	result, execErr := e.execute(ctx, cfg, executeFn, workflow.OriginalParameters)
	elapsedMs := time.Since(started).Milliseconds()

	attempt := Attempt{
		AttemptID:       uuid.NewString(),
		Timestamp:       started,
		Strategy:        strategyName,
		Parameters:      copyParams(workflow.OriginalParameters),
		Success:         execErr == nil,
		ExecutionTimeMs: elapsedMs,
	}
	if execErr != nil {
		attempt.Error = execErr.Error()
	}
	e.mutateWorkflow(workflow, func(w *Workflow) {
		w.Attempts = append(w.Attempts, attempt)
	})
	e.publish(events.TypeWorkflowAttempt, workflow, map[string]interface{}{
		"attempt_number": 1,
		"strategy":       strategyName,
		"success":        execErr == nil,
	})

	if execErr == nil {
		learned := e.patterns.upsert(key, pattern.SuccessfulStrategy, elapsedMs)
		e.mutateWorkflow(workflow, func(w *Workflow) {
			w.LearnedPatterns = append(w.LearnedPatterns, key.String())
			w.setStatus(StatusSuccessful)
			w.FinalOutcome = &Outcome{
				Success:           true,
				Result:            result,
				TotalRecoveryTime: time.Since(w.StartTime).Milliseconds(),
			}
		})
		e.metrics.RecordPatternLearned()
		e.obsLogger.Info(logger.ComponentPatternStats, logger.CategoryLearning, requestID,
			"Learned pattern replay succeeded", map[string]interface{}{
				"workflow_id":   workflow.WorkflowID,
				"pattern_key":   key.String(),
				"success_count": learned.SuccessCount,
			})
		return
	}

	e.obsLogger.Warn(logger.ComponentPatternStats, logger.CategoryWarning, requestID,
		"Learned pattern replay failed, degrading to auto-retry", map[string]interface{}{
			"workflow_id": workflow.WorkflowID,
			"pattern_key": key.String(),
			"error":       execErr.Error(),
		})
	e.mutateWorkflow(workflow, func(w *Workflow) {
		w.WorkflowType = WorkflowAutoRetry
	})
	e.runAutoRetry(ctx, cfg, workflow, executeFn)
}

// runEscalation hands the failure off to human attention
func (e *Engine) runEscalation(ctx context.Context, workflow *Workflow, reason string) {
	requestID := internal.GetRequestID(ctx)

	var summary []map[string]interface{}
	e.mutateWorkflow(workflow, func(w *Workflow) {
		w.setStatus(StatusEscalated)
		w.EscalationReason = reason
		summary = make([]map[string]interface{}, 0, len(w.Attempts))
		for _, attempt := range w.Attempts {
			summary = append(summary, map[string]interface{}{
				"strategy": attempt.Strategy,
				"success":  attempt.Success,
				"error":    attempt.Error,
			})
		}
		w.FinalOutcome = &Outcome{
			Success:           false,
			Error:             "Escalated to human intervention",
			TotalRecoveryTime: time.Since(w.StartTime).Milliseconds(),
		}
	})

	e.publish(events.TypeEscalationAlert, workflow, map[string]interface{}{
		"reason":         reason,
		"original_error": workflow.OriginalError,
		"attempts":       summary,
	})
	e.metrics.RecordEscalation(workflow.ToolName)
	e.obsLogger.Error(logger.ComponentRecoveryWorkflow, logger.CategoryEscalation, requestID,
		"Recovery escalated to human intervention", map[string]interface{}{
			"workflow_id": workflow.WorkflowID,
			"tool_name":   workflow.ToolName,
			"reason":      reason,
			"attempts":    len(workflow.Attempts),
		})
}

// learnFromSuccess upserts the learned pattern for a successful auto-retry
func (e *Engine) learnFromSuccess(cfg config.RecoveryConfig, workflow *Workflow, strategy string, recoveryTimeMs int64) {
	if !cfg.PatternLearningEnabled {
		return
	}
	key := PatternKey{ToolName: workflow.ToolName, Category: CategorizeError(workflow.OriginalError)}
	e.patterns.upsert(key, strategy, recoveryTimeMs)
	e.mutateWorkflow(workflow, func(w *Workflow) {
		w.LearnedPatterns = append(w.LearnedPatterns, key.String())
	})
	e.metrics.RecordPatternLearned()
}

// execute invokes the callback, applying the configured per-execution
// deadline when one is set.
func (e *Engine) execute(ctx context.Context, cfg config.RecoveryConfig, executeFn ExecuteFunc, params map[string]interface{}) (interface{}, error) {
	if cfg.RecoveryTimeout > 0 {
		timeoutCtx, cancel := context.WithTimeout(ctx, cfg.RecoveryTimeout)
		defer cancel()
		ctx = timeoutCtx
	}
	return executeFn(ctx, params)
}

// completeWorkflow finalizes bookkeeping once a workflow reaches a
// terminal state: end time, breaker update, history persistence and the
// completion event.
func (e *Engine) completeWorkflow(ctx context.Context, workflow *Workflow, breakerKey types.BreakerKey) {
	e.mu.Lock()
	workflow.EndTime = time.Now()
	delete(e.active, workflow.WorkflowID)
	e.mu.Unlock()

	e.breaker.Update(breakerKey, workflow.Status == StatusSuccessful)
	e.persist(workflow)

	duration := workflow.EndTime.Sub(workflow.StartTime)
	e.publish(events.TypeWorkflowCompleted, workflow, map[string]interface{}{
		"status":        string(workflow.Status),
		"workflow_type": string(workflow.WorkflowType),
		"attempts":      len(workflow.Attempts),
		"duration_ms":   duration.Milliseconds(),
	})
	e.metrics.RecordWorkflow(string(workflow.WorkflowType), string(workflow.Status),
		duration.Seconds(), len(workflow.Attempts))
	e.obsLogger.Info(logger.ComponentRecoveryWorkflow, logger.CategoryRecovery,
		internal.GetRequestID(ctx), "Recovery workflow completed", map[string]interface{}{
			"workflow_id":   workflow.WorkflowID,
			"status":        string(workflow.Status),
			"workflow_type": string(workflow.WorkflowType),
			"attempts":      len(workflow.Attempts),
			"duration_ms":   duration.Milliseconds(),
		})
}

// persist appends the workflow to bounded per-(agent, tool) history
func (e *Engine) persist(workflow *Workflow) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := types.BreakerKey{AgentID: workflow.AgentID, ToolName: workflow.ToolName}
	history := append(e.history[key], workflow)
	limit := e.cfg.WorkflowHistoryLimit
	if limit <= 0 {
		limit = 50
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	e.history[key] = history
}

func (e *Engine) publish(eventType events.Type, workflow *Workflow, fields map[string]interface{}) {
	e.bus.Publish(events.Event{
		Type:       eventType,
		AgentID:    workflow.AgentID,
		ChannelID:  workflow.ChannelID,
		ToolName:   workflow.ToolName,
		WorkflowID: workflow.WorkflowID,
		Fields:     fields,
	})
}

// GetActiveWorkflows returns copies of all in-flight workflows
func (e *Engine) GetActiveWorkflows() []Workflow {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Workflow, 0, len(e.active))
	for _, workflow := range e.active {
		out = append(out, *workflow)
	}
	return out
}

// GetCircuitBreakerStates returns all breaker states keyed by agent:tool
func (e *Engine) GetCircuitBreakerStates() map[string]circuitbreaker.State {
	states := e.breaker.States()
	out := make(map[string]circuitbreaker.State, len(states))
	for key, state := range states {
		out[key.String()] = state
	}
	return out
}

// ResetCircuitBreaker clears breaker state for one (agent, tool) key
func (e *Engine) ResetCircuitBreaker(key types.BreakerKey) {
	e.breaker.Reset(key)
}

// MonitorCircuitBreaker logs breaker state snapshots at the configured
// monitor interval until ctx is cancelled. Run it in its own goroutine.
func (e *Engine) MonitorCircuitBreaker(ctx context.Context) {
	e.breaker.Monitor(ctx, e.monitorInterval)
}

// GetLearnedPatterns returns a copy of the learned-pattern map keyed by
// tool:category.
func (e *Engine) GetLearnedPatterns() map[string]LearnedPattern {
	return e.patterns.snapshot()
}

// GetRecoveryStats aggregates workflow history and learned patterns
func (e *Engine) GetRecoveryStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Stats{
		ActiveWorkflows: len(e.active),
		ByStatus:        make(map[Status]int),
		ByType:          make(map[WorkflowType]int),
		LearnedPatterns: e.patterns.count(),
	}

	recoveredTotal := int64(0)
	recoveredCount := 0
	for _, history := range e.history {
		for _, workflow := range history {
			stats.TotalWorkflows++
			stats.ByStatus[workflow.Status]++
			stats.ByType[workflow.WorkflowType]++
			if workflow.Status == StatusEscalated {
				stats.EscalatedWorkflows++
			}
			if workflow.FinalOutcome != nil && workflow.FinalOutcome.Success {
				recoveredTotal += workflow.FinalOutcome.TotalRecoveryTime
				recoveredCount++
			}
		}
	}
	if recoveredCount > 0 {
		stats.AverageRecoveryMs = float64(recoveredTotal) / float64(recoveredCount)
	}
	return stats
}

// ClearWorkflowHistory drops all completed workflow records
func (e *Engine) ClearWorkflowHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = make(map[types.BreakerKey][]*Workflow)
}

// copyParams makes a shallow copy of a parameter map
func copyParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
