package recovery

import (
	"sync"
	"time"
)

// PatternKey identifies a learned recovery pattern
type PatternKey struct {
	ToolName string
	Category ErrorCategory
}

// String renders the key in the tool:category form used in stats payloads
func (k PatternKey) String() string {
	return k.ToolName + ":" + string(k.Category)
}

// LearnedPattern caches which strategy previously recovered a
// (tool, error category) pair, with usage statistics. Updated only on
// successful recoveries.
type LearnedPattern struct {
	ToolName              string        `json:"tool_name"`
	ErrorPattern          ErrorCategory `json:"error_pattern"`
	SuccessfulStrategy    string        `json:"successful_strategy"`
	SuccessCount          int           `json:"success_count"`
	LastUsed              time.Time     `json:"last_used"`
	AverageRecoveryTimeMs int64         `json:"average_recovery_time_ms"`
}

// patternBook owns the learned-pattern map
type patternBook struct {
	mu       sync.RWMutex
	patterns map[PatternKey]*LearnedPattern
}

func newPatternBook() *patternBook {
	return &patternBook{patterns: make(map[PatternKey]*LearnedPattern)}
}

// lookup returns a copy of the pattern for the key, if one exists
func (b *patternBook) lookup(key PatternKey) (LearnedPattern, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pattern, exists := b.patterns[key]
	if !exists {
		return LearnedPattern{}, false
	}
	return *pattern, true
}

// upsert records a successful recovery. Recovery time blends by pairwise
// averaging with the previous value, not a weighted moving average.
func (b *patternBook) upsert(key PatternKey, strategy string, recoveryTimeMs int64) LearnedPattern {
	b.mu.Lock()
	defer b.mu.Unlock()

	pattern, exists := b.patterns[key]
	if !exists {
		pattern = &LearnedPattern{
			ToolName:              key.ToolName,
			ErrorPattern:          key.Category,
			SuccessfulStrategy:    strategy,
			SuccessCount:          1,
			LastUsed:              time.Now(),
			AverageRecoveryTimeMs: recoveryTimeMs,
		}
		b.patterns[key] = pattern
		return *pattern
	}

	pattern.SuccessfulStrategy = strategy
	pattern.SuccessCount++
	pattern.LastUsed = time.Now()
	pattern.AverageRecoveryTimeMs = (pattern.AverageRecoveryTimeMs + recoveryTimeMs) / 2
	return *pattern
}

// count returns the number of learned patterns
func (b *patternBook) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.patterns)
}

// snapshot returns a copy of all learned patterns
func (b *patternBook) snapshot() map[string]LearnedPattern {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]LearnedPattern, len(b.patterns))
	for key, pattern := range b.patterns {
		out[key.String()] = *pattern
	}
	return out
}
