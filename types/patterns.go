package types

import "context"

// Pattern is a historically observed parameter set for a tool, as served by
// the external pattern store.
type Pattern struct {
	Parameters      map[string]interface{} `json:"parameters"`
	ConfidenceScore float64                `json:"confidence_score"`
	Frequency       int                    `json:"frequency"`
}

// PatternSet groups the store's answer for a (channel, tool) query
type PatternSet struct {
	Successful []Pattern `json:"successful"`
	Shared     []Pattern `json:"shared"`
}

// Recommendation is a pattern-store suggestion for a specific failed call
type Recommendation struct {
	Confidence     float64 `json:"confidence"`
	RelevanceScore float64 `json:"relevance_score"`
	Pattern        Pattern `json:"pattern"`
	Reason         string  `json:"reason,omitempty"`
}

// PatternStore is the narrow interface to the external pattern service.
// This module only reads patterns and reports successes back; the store's
// persistence and ranking internals live elsewhere.
type PatternStore interface {
	// GetPatterns returns known parameter patterns for a tool in a channel.
	// When onlySuccessful is true the store may omit the shared set.
	GetPatterns(ctx context.Context, channelID, toolName string, onlySuccessful bool) (PatternSet, error)

	// GetRecommendations returns ranked correction suggestions for a call
	GetRecommendations(ctx context.Context, agentID, channelID, toolName string, parameters map[string]interface{}) ([]Recommendation, error)

	// StoreSuccessfulPattern records a parameter set that led to a
	// successful execution, optionally with the recovery time that
	// produced it.
	StoreSuccessfulPattern(ctx context.Context, agentID, channelID, toolName string, parameters map[string]interface{}, recoveryTimeMs int64) error
}

// BestSuccessfulPattern picks the highest-confidence successful pattern from
// a set, or nil when the store has nothing usable.
func BestSuccessfulPattern(set PatternSet) *Pattern {
	var best *Pattern
	for i := range set.Successful {
		p := &set.Successful[i]
		if len(p.Parameters) == 0 {
			continue
		}
		if best == nil || p.ConfidenceScore > best.ConfidenceScore {
			best = p
		}
	}
	return best
}
