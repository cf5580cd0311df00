// Package event defines the fire-and-forget event sink fed by lifecycle
// transitions. Emission is best-effort and never load-bearing: a failed or
// dropped event does not affect engine state, and emit errors are logged,
// not propagated.
package event

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Type identifies an event kind.
type Type string

// Event types emitted by the engine and the distributor.
const (
	TypeStreamCreated        Type = "StreamCreated"
	TypeStreamDeposit        Type = "StreamDeposit"
	TypeStreamPaused         Type = "StreamPaused"
	TypeStreamResumed        Type = "StreamResumed"
	TypeStreamCanceled       Type = "StreamCanceled"
	TypeStreamCompleted      Type = "StreamCompleted"
	TypeWithdrawal           Type = "Withdrawal"
	TypeFeeCollected         Type = "FeeCollected"
	TypeDelegationGranted    Type = "DelegationGranted"
	TypeDelegationRevoked    Type = "DelegationRevoked"
	TypeCancelRequested      Type = "CancelRequested"
	TypeCancelRequestRevoked Type = "CancelRequestRevoked"
	TypeConsensualCancel     Type = "ConsensualCancel"
	TypeDistribution         Type = "Distribution"
)

// Event is one emitted record. Data carries type-specific fields.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// New creates an event with a fresh uuid.
func New(eventType Type, timestamp int64, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: timestamp,
		Data:      data,
	}
}

// Marshal renders the event as JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Sink receives emitted events.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// NopSink discards all events.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(context.Context, Event) {}

// CaptureSink records events in memory, for tests.
type CaptureSink struct {
	Events []Event
}

// Emit implements Sink.
func (c *CaptureSink) Emit(_ context.Context, e Event) {
	c.Events = append(c.Events, e)
}

// ByType returns the captured events of one type.
func (c *CaptureSink) ByType(t Type) []Event {
	var out []Event
	for _, e := range c.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
