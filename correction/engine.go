package correction

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"agent-recovery/config"
	"agent-recovery/events"
	"agent-recovery/internal"
	"agent-recovery/logger"
	"agent-recovery/metrics"
	"agent-recovery/types"
)

// Engine arbitrates between correction strategies, enforces the per-key
// attempt ceiling and keeps a bounded audit history of attempts.
type Engine struct {
	mu       sync.Mutex
	cfg      config.CorrectionConfig
	registry []Strategy
	store    types.PatternStore
	attempts map[types.CorrectionKey][]*CorrectionAttempt

	bus       *events.Bus
	obsLogger *logger.ObservabilityLogger
	metrics   *metrics.Metrics
	jitter    func() float64 // test seam, defaults to rand.Float64
}

// NewEngine creates a correction engine with the default strategy registry.
// store may be nil; pattern-backed strategies then decline every call.
func NewEngine(cfg config.CorrectionConfig, store types.PatternStore) *Engine {
	return &Engine{
		cfg:       cfg,
		registry:  NewRegistry(store),
		store:     store,
		attempts:  make(map[types.CorrectionKey][]*CorrectionAttempt),
		obsLogger: logger.NewDiscardLogger(),
		jitter:    rand.Float64,
	}
}

// SetObservabilityLogger sets the structured logger
func (e *Engine) SetObservabilityLogger(obsLogger *logger.ObservabilityLogger) {
	if obsLogger != nil {
		e.obsLogger = obsLogger
	}
}

// SetEventBus wires lifecycle event publication; nil disables it
func (e *Engine) SetEventBus(bus *events.Bus) {
	e.bus = bus
}

// SetMetrics wires Prometheus instrumentation; nil disables it
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// SetJitterSource overrides the jitter randomness. Tests only.
func (e *Engine) SetJitterSource(f func() float64) {
	e.jitter = f
}

// GetConfig returns a copy of the current configuration
func (e *Engine) GetConfig() config.CorrectionConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// UpdateConfig applies a partial configuration update
func (e *Engine) UpdateConfig(update config.CorrectionUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = update.Apply(e.cfg)
	e.obsLogger.Info(logger.ComponentConfig, logger.CategoryDebug, "",
		"Correction config updated", map[string]interface{}{
			"enabled":              e.cfg.Enabled,
			"max_retry_attempts":   e.cfg.MaxRetryAttempts,
			"confidence_threshold": e.cfg.ConfidenceThreshold,
		})
}

// AttemptCorrection analyzes a failed tool call and, when a strategy clears
// the confidence threshold, returns a corrected parameter set together with
// the delay the caller should wait before retrying. The engine never sleeps
// itself. Returns ErrCorrectionDisabled when the engine is disabled.
func (e *Engine) AttemptCorrection(ctx context.Context, agentID, channelID, toolName string,
	originalParams map[string]interface{}, errorMessage string, schema *types.Tool) (*CorrectionResult, error) {

	e.mu.Lock()
	cfg := e.cfg
	if !cfg.Enabled {
		e.mu.Unlock()
		return nil, ErrCorrectionDisabled
	}

	key := types.CorrectionKey{AgentID: agentID, ChannelID: channelID, ToolName: toolName}
	priorAttempts := len(e.attempts[key])
	e.mu.Unlock()

	requestID := internal.GetRequestID(ctx)

	// Attempt ceiling: refuse before any strategy runs
	if priorAttempts >= cfg.MaxRetryAttempts {
		e.obsLogger.Warn(logger.ComponentCorrectionEngine, logger.CategoryBlocked, requestID,
			"Correction attempt ceiling reached", map[string]interface{}{
				"key":          key.String(),
				"attempts":     priorAttempts,
				"max_attempts": cfg.MaxRetryAttempts,
			})
		return &CorrectionResult{Corrected: false, ShouldRetry: false}, nil
	}

	call := Call{
		AgentID:      agentID,
		ChannelID:    channelID,
		ToolName:     toolName,
		Parameters:   originalParams,
		ErrorMessage: errorMessage,
		Schema:       schema,
	}

	winner, winnerResult := e.arbitrate(ctx, cfg, call, requestID)

	// No applicable strategy, or the winner is not confident enough: a
	// failed attempt is still recorded for the audit trail.
	if winner == nil || winnerResult.Confidence < cfg.ConfidenceThreshold || winnerResult.SuggestedCorrection == nil {
		strategyType := "none"
		confidence := 0.0
		if winner != nil {
			strategyType = winner.Type()
			confidence = winnerResult.Confidence
		}
		attempt := e.recordAttempt(key, &CorrectionAttempt{
			AgentID:             agentID,
			ChannelID:           channelID,
			ToolName:            toolName,
			OriginalParameters:  cloneParams(originalParams),
			CorrectedParameters: cloneParams(originalParams),
			Strategy:            strategyType,
			Confidence:          confidence,
		})
		e.metrics.RecordCorrection(strategyType, false, confidence)
		e.publishAttempt(attempt, false, cfg.AuditAllAttempts)
		e.obsLogger.Info(logger.ComponentCorrectionEngine, logger.CategoryCorrection, requestID,
			"No correction applied", map[string]interface{}{
				"key":        key.String(),
				"strategy":   strategyType,
				"confidence": confidence,
				"threshold":  cfg.ConfidenceThreshold,
			})
		return &CorrectionResult{Corrected: false, ShouldRetry: false}, nil
	}

	// Pending until ReportCorrectionResult settles it
	attempt := e.recordAttempt(key, &CorrectionAttempt{
		AgentID:             agentID,
		ChannelID:           channelID,
		ToolName:            toolName,
		OriginalParameters:  cloneParams(originalParams),
		CorrectedParameters: cloneParams(winnerResult.SuggestedCorrection),
		Strategy:            winner.Type(),
		Confidence:          winnerResult.Confidence,
	})

	delay := e.CalculateRetryDelay(priorAttempts)
	e.metrics.RecordCorrection(winner.Type(), true, winnerResult.Confidence)
	e.publishAttempt(attempt, true, cfg.AuditAllAttempts)
	e.obsLogger.Info(logger.ComponentCorrectionEngine, logger.CategoryCorrection, requestID,
		"Correction applied", map[string]interface{}{
			"key":         key.String(),
			"strategy":    winner.Type(),
			"confidence":  winnerResult.Confidence,
			"attempt_id":  attempt.AttemptID,
			"retry_delay": delay.String(),
			"reasoning":   winnerResult.Reasoning,
		})

	return &CorrectionResult{
		Corrected:           true,
		CorrectedParameters: winnerResult.SuggestedCorrection,
		Strategy:            winner.Type(),
		Confidence:          winnerResult.Confidence,
		AttemptID:           attempt.AttemptID,
		ShouldRetry:         true,
		RetryDelay:          delay,
	}, nil
}

// arbitrate evaluates every enabled strategy and picks the highest
// confidence applicable one; ties break toward registry order. A strategy
// that errors or panics is treated as having declined.
func (e *Engine) arbitrate(ctx context.Context, cfg config.CorrectionConfig, call Call, requestID string) (Strategy, AnalysisResult) {
	var winner Strategy
	var winnerResult AnalysisResult

	for _, strategy := range e.registry {
		if !cfg.EnabledStrategies[strategy.Type()] {
			continue
		}

		result, err := e.analyzeSafely(ctx, strategy, call)
		if err != nil {
			e.obsLogger.Warn(logger.ComponentStrategyRegistry, logger.CategoryWarning, requestID,
				"Strategy failed during analysis, treating as declined", map[string]interface{}{
					"strategy": strategy.Type(),
					"error":    err.Error(),
				})
			continue
		}
		if !result.CanCorrect {
			continue
		}
		if winner == nil || result.Confidence > winnerResult.Confidence {
			winner = strategy
			winnerResult = result
		}
	}
	return winner, winnerResult
}

// analyzeSafely turns a panicking strategy into a declined one
func (e *Engine) analyzeSafely(ctx context.Context, strategy Strategy, call Call) (result AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = AnalysisResult{}
			err = fmt.Errorf("strategy %s panicked: %v", strategy.Type(), r)
		}
	}()
	return strategy.Analyze(ctx, call)
}

// recordAttempt stamps identity/time onto the attempt, appends it to the
// key's history and trims the history to the configured limit.
func (e *Engine) recordAttempt(key types.CorrectionKey, attempt *CorrectionAttempt) *CorrectionAttempt {
	attempt.AttemptID = uuid.NewString()
	attempt.Timestamp = time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	history := append(e.attempts[key], attempt)
	limit := e.cfg.HistoryLimit
	if limit <= 0 {
		limit = 10
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	e.attempts[key] = history
	return attempt
}

// CalculateRetryDelay computes the exponential backoff for the given
// attempt index, capped at the configured maximum, plus up to 10% jitter.
func (e *Engine) CalculateRetryDelay(attemptIndex int) time.Duration {
	e.mu.Lock()
	base := e.cfg.RetryDelayBase
	multiplier := e.cfg.RetryDelayMultiplier
	maxDelay := e.cfg.MaxRetryDelay
	e.mu.Unlock()

	raw := time.Duration(float64(base) * math.Pow(multiplier, float64(attemptIndex)))
	if raw > maxDelay {
		raw = maxDelay
	}
	jitter := time.Duration(e.jitter() * 0.1 * float64(raw))
	return raw + jitter
}

// ReportCorrectionResult settles a pending attempt with the outcome of the
// retried execution. Successful corrections feed the pattern store when
// learning is enabled.
func (e *Engine) ReportCorrectionResult(ctx context.Context, attemptID string, successful bool, errorMessage string, executionTimeMs int64) error {
	e.mu.Lock()
	var found *CorrectionAttempt
	for _, history := range e.attempts {
		for _, attempt := range history {
			if attempt.AttemptID == attemptID {
				found = attempt
				break
			}
		}
		if found != nil {
			break
		}
	}
	if found == nil {
		e.mu.Unlock()
		return ErrAttemptNotFound
	}

	found.Successful = successful
	found.ErrorMessage = errorMessage
	found.RecoveryTimeMs = executionTimeMs

	learn := successful && e.cfg.LearnFromSuccessfulCorrections && e.store != nil
	agentID, channelID, toolName := found.AgentID, found.ChannelID, found.ToolName
	corrected := cloneParams(found.CorrectedParameters)
	e.mu.Unlock()

	requestID := internal.GetRequestID(ctx)
	e.publishResult(found, successful)
	e.obsLogger.Info(logger.ComponentCorrectionEngine, logger.CategoryCorrection, requestID,
		"Correction result reported", map[string]interface{}{
			"attempt_id":        attemptID,
			"successful":        successful,
			"execution_time_ms": executionTimeMs,
		})

	if learn {
		if err := e.store.StoreSuccessfulPattern(ctx, agentID, channelID, toolName, corrected, executionTimeMs); err != nil {
			e.obsLogger.Warn(logger.ComponentCorrectionEngine, logger.CategoryWarning, requestID,
				"Failed to store successful pattern", map[string]interface{}{
					"tool_name": toolName,
					"error":     err.Error(),
				})
		}
	}
	return nil
}

func (e *Engine) publishAttempt(attempt *CorrectionAttempt, corrected bool, auditAll bool) {
	if e.bus == nil {
		return
	}
	if !corrected && !auditAll {
		return
	}
	e.bus.Publish(events.Event{
		Type:      events.TypeCorrectionAttempt,
		AgentID:   attempt.AgentID,
		ChannelID: attempt.ChannelID,
		ToolName:  attempt.ToolName,
		AttemptID: attempt.AttemptID,
		Fields: map[string]interface{}{
			"strategy":   attempt.Strategy,
			"confidence": attempt.Confidence,
			"corrected":  corrected,
		},
	})
}

func (e *Engine) publishResult(attempt *CorrectionAttempt, successful bool) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.Event{
		Type:      events.TypeCorrectionResult,
		AgentID:   attempt.AgentID,
		ChannelID: attempt.ChannelID,
		ToolName:  attempt.ToolName,
		AttemptID: attempt.AttemptID,
		Fields: map[string]interface{}{
			"strategy":         attempt.Strategy,
			"successful":       successful,
			"recovery_time_ms": attempt.RecoveryTimeMs,
		},
	})
}

// AttemptsFor returns a copy of the attempt history for a key
func (e *Engine) AttemptsFor(key types.CorrectionKey) []CorrectionAttempt {
	e.mu.Lock()
	defer e.mu.Unlock()

	history := e.attempts[key]
	out := make([]CorrectionAttempt, len(history))
	for i, attempt := range history {
		out[i] = *attempt
	}
	return out
}

// GetStats aggregates attempt history across all keys
func (e *Engine) GetStats() CorrectionStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := CorrectionStats{
		ByStrategy: make(map[string]int),
		ByTool:     make(map[string]int),
	}
	confidenceSum := 0.0
	for _, history := range e.attempts {
		for _, attempt := range history {
			stats.TotalAttempts++
			if attempt.Successful {
				stats.SuccessfulAttempts++
			} else {
				stats.FailedAttempts++
			}
			stats.ByStrategy[attempt.Strategy]++
			stats.ByTool[attempt.ToolName]++
			confidenceSum += attempt.Confidence
		}
	}
	if stats.TotalAttempts > 0 {
		stats.SuccessRate = float64(stats.SuccessfulAttempts) / float64(stats.TotalAttempts)
		stats.AverageConfidence = confidenceSum / float64(stats.TotalAttempts)
	}
	return stats
}

// ClearHistory drops all recorded attempts for every key
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts = make(map[types.CorrectionKey][]*CorrectionAttempt)
}
