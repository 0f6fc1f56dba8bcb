// Package circuitbreaker gates recovery attempts per (agent, tool) key
// after repeated failures, then permits a single half-open probe once the
// cooldown elapses.
package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"agent-recovery/logger"
	"agent-recovery/metrics"
	"agent-recovery/types"
)

// State tracks the breaker status for one (agent, tool) key
type State struct {
	IsOpen          bool      `json:"is_open"`
	FailureCount    int       `json:"failure_count"`
	LastFailureTime time.Time `json:"last_failure_time"`
	NextRetryTime   time.Time `json:"next_retry_time"`
	HalfOpenTime    time.Time `json:"half_open_time,omitempty"`
}

// Config controls circuit breaker behavior
type Config struct {
	Enabled          bool          `json:"enabled"`
	FailureThreshold int           `json:"failure_threshold"` // failures before opening circuit
	Timeout          time.Duration `json:"timeout"`           // how long the circuit stays open
}

// DefaultConfig returns sensible defaults for circuit breaker
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
	}
}

// Breaker manages per-key circuit state. State is created lazily on first
// failure and lives for the process lifetime or until Reset.
type Breaker struct {
	config    Config
	mu        sync.RWMutex
	states    map[types.BreakerKey]*State
	obsLogger *logger.ObservabilityLogger
	metrics   *metrics.Metrics
	now       func() time.Time // test seam
}

// New creates a breaker with the given config
func New(config Config) *Breaker {
	return &Breaker{
		config:    config,
		states:    make(map[types.BreakerKey]*State),
		obsLogger: logger.NewDiscardLogger(),
		now:       time.Now,
	}
}

// SetObservabilityLogger sets the structured logger
func (b *Breaker) SetObservabilityLogger(obsLogger *logger.ObservabilityLogger) {
	if obsLogger != nil {
		b.obsLogger = obsLogger
	}
}

// SetMetrics wires Prometheus instrumentation; nil disables it
func (b *Breaker) SetMetrics(m *metrics.Metrics) {
	b.metrics = m
}

// SetClock overrides the time source. Tests only.
func (b *Breaker) SetClock(now func() time.Time) {
	b.now = now
}

// IsOpen reports whether recovery for the key is currently refused. An open
// circuit whose retry time has passed transitions to half-open and lets
// exactly one probe through (returns false once).
func (b *Breaker) IsOpen(key types.BreakerKey) bool {
	if !b.config.Enabled {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	state, exists := b.states[key]
	if !exists {
		return false
	}

	if state.IsOpen && !b.now().Before(state.NextRetryTime) {
		// Cooldown elapsed: permit one probe
		state.IsOpen = false
		state.HalfOpenTime = b.now()
		b.metrics.RecordCircuitTransition("half_open")
		b.obsLogger.Info(logger.ComponentCircuitBreaker, logger.CategoryHealth, "",
			"Circuit half-open, permitting probe", map[string]interface{}{
				"agent_id":  key.AgentID,
				"tool_name": key.ToolName,
				"failures":  state.FailureCount,
			})
		return false
	}

	return state.IsOpen
}

// Update records the outcome of a recovery attempt for the key. Success
// closes the circuit and clears the failure count; failure increments it
// and opens the circuit once the threshold is reached.
func (b *Breaker) Update(key types.BreakerKey, success bool) {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	state, exists := b.states[key]
	if !exists {
		state = &State{}
		b.states[key] = state
	}

	if success {
		wasOpen := state.IsOpen
		state.FailureCount = 0
		state.IsOpen = false
		state.NextRetryTime = time.Time{}
		if wasOpen {
			b.metrics.RecordCircuitTransition("closed")
			b.obsLogger.Info(logger.ComponentCircuitBreaker, logger.CategorySuccess, "",
				"Circuit closed after successful recovery", map[string]interface{}{
					"agent_id":  key.AgentID,
					"tool_name": key.ToolName,
				})
		}
		return
	}

	state.FailureCount++
	state.LastFailureTime = b.now()

	if state.FailureCount >= b.config.FailureThreshold && !state.IsOpen {
		state.IsOpen = true
		state.NextRetryTime = b.now().Add(b.config.Timeout)
		state.HalfOpenTime = time.Time{}
		b.metrics.RecordCircuitTransition("open")
		b.obsLogger.Warn(logger.ComponentCircuitBreaker, logger.CategoryWarning, "",
			"Circuit opened", map[string]interface{}{
				"agent_id":   key.AgentID,
				"tool_name":  key.ToolName,
				"failures":   state.FailureCount,
				"retry_time": state.NextRetryTime,
			})
	}
}

// Snapshot returns a copy of the state for a key, if any exists
func (b *Breaker) Snapshot(key types.BreakerKey) (State, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	state, exists := b.states[key]
	if !exists {
		return State{}, false
	}
	return *state, true
}

// States returns a copy of all breaker states keyed by agent:tool
func (b *Breaker) States() map[types.BreakerKey]State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[types.BreakerKey]State, len(b.states))
	for key, state := range b.states {
		out[key] = *state
	}
	return out
}

// Reset clears the state for a key, closing the circuit immediately
func (b *Breaker) Reset(key types.BreakerKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, key)
}

// Monitor logs a state snapshot every interval until ctx is cancelled.
// Log-only: it never mutates breaker state.
func (b *Breaker) Monitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			open := 0
			states := b.States()
			for _, state := range states {
				if state.IsOpen {
					open++
				}
			}
			b.obsLogger.Info(logger.ComponentCircuitBreaker, logger.CategoryHealth, "",
				"Circuit breaker snapshot", map[string]interface{}{
					"tracked_keys":  len(states),
					"open_circuits": open,
				})
		}
	}
}
