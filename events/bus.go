// Package events carries correction and workflow lifecycle notifications to
// in-process subscribers (analytics, auditing). Publication is
// fire-and-forget: a slow subscriber loses events, it never blocks the
// recovery core.
package events

import (
	"sync"
	"time"
)

// Type identifies the kind of lifecycle event
type Type string

const (
	TypeCorrectionAttempt Type = "correction_attempt"
	TypeCorrectionResult  Type = "correction_result"
	TypeWorkflowInitiated Type = "workflow_initiated"
	TypeWorkflowAttempt   Type = "workflow_attempt"
	TypeWorkflowCompleted Type = "workflow_completed"
	TypeCircuitOpened     Type = "circuit_opened"
	TypeEscalationAlert   Type = "escalation_alert"
)

// Event is a single lifecycle notification
type Event struct {
	Type       Type                   `json:"type"`
	Timestamp  time.Time              `json:"timestamp"`
	AgentID    string                 `json:"agent_id,omitempty"`
	ChannelID  string                 `json:"channel_id,omitempty"`
	ToolName   string                 `json:"tool_name,omitempty"`
	WorkflowID string                 `json:"workflow_id,omitempty"`
	AttemptID  string                 `json:"attempt_id,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// Bus fans events out to subscribers over buffered channels
type Bus struct {
	mu      sync.RWMutex
	subs    []chan Event
	bufSize int
	closed  bool
}

// NewBus creates a bus whose subscriber channels hold bufSize events
func NewBus(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Bus{bufSize: bufSize}
}

// Subscribe registers a new subscriber and returns its receive channel.
// The channel is closed when the bus is closed.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers an event to every subscriber without blocking. Events
// are dropped for subscribers whose buffers are full.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close shuts the bus down and closes all subscriber channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
