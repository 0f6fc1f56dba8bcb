package types

import "fmt"

// CorrectionKey identifies the retry scope for correction attempts.
// A comparable struct is used instead of a concatenated string so that a
// channel ID containing the delimiter can never collide with another key.
type CorrectionKey struct {
	AgentID   string
	ChannelID string
	ToolName  string
}

// String renders the key in the human-readable agent:channel:tool form
// used in logs and stats payloads.
func (k CorrectionKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.AgentID, k.ChannelID, k.ToolName)
}

// BreakerKey identifies a circuit breaker scope. Breakers deliberately
// ignore the channel: repeated failures of a tool by one agent trip the
// breaker across all of that agent's channels.
type BreakerKey struct {
	AgentID  string
	ToolName string
}

func (k BreakerKey) String() string {
	return fmt.Sprintf("%s:%s", k.AgentID, k.ToolName)
}
