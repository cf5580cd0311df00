package stream

import (
	"encoding/json"
	"fmt"

	"github.com/Fundable-Protocol/stellar-client/errors"
)

// Address identifies a principal (sender, recipient, delegate, admin, fee
// collector) or a token contract. Opaque to the engine; the authorization
// layer decides what it means to prove control of one.
type Address string

// ID is a sequential stream identifier, starting at 1.
type ID uint64

// Status represents the lifecycle status of a stream
type Status string

// Status constants define the lifecycle states of a stream:
//   - StatusActive: funds vest as time elapses
//   - StatusPaused: vesting is frozen; the window extends on resume
//   - StatusCanceled: terminated by the sender or by mutual consent (terminal)
//   - StatusCompleted: the full total has been withdrawn (terminal)
const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
)

// Terminal reports whether the status permits no further balance mutation.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusCompleted
}

// State is the sealed per-status state of a stream. Each variant carries
// exactly the fields valid in that status, so an Active stream cannot carry a
// pause timestamp and a Paused stream cannot lack one.
type State interface {
	Status() Status
	sealedState()
}

// Active is the state of a stream whose funds vest as time elapses.
type Active struct{}

// Paused is the state of a stream whose vesting is frozen.
type Paused struct {
	// PausedAt is the Unix time at which the current pause began.
	PausedAt int64
}

// Canceled is the terminal state of a stream ended early.
type Canceled struct{}

// Completed is the terminal state of a fully withdrawn stream.
type Completed struct{}

// Status implements State.
func (Active) Status() Status { return StatusActive }

// Status implements State.
func (Paused) Status() Status { return StatusPaused }

// Status implements State.
func (Canceled) Status() Status { return StatusCanceled }

// Status implements State.
func (Completed) Status() Status { return StatusCompleted }

func (Active) sealedState()    {}
func (Paused) sealedState()    {}
func (Canceled) sealedState()  {}
func (Completed) sealedState() {}

// Stream is an escrow-backed, time-vested transfer from sender to recipient.
type Stream struct {
	ID        ID      `json:"id"`
	Sender    Address `json:"sender"`
	Recipient Address `json:"recipient"`
	Token     Address `json:"token"`

	// TotalAmount is the full obligation of the stream. Balance is the amount
	// escrowed so far; WithdrawnAmount the amount already paid out (gross,
	// before fees). Invariant: 0 <= WithdrawnAmount <= Balance <= TotalAmount.
	TotalAmount     int64 `json:"total_amount"`
	Balance         int64 `json:"balance"`
	WithdrawnAmount int64 `json:"withdrawn_amount"`

	// StartTime and EndTime bound the vesting window in Unix seconds.
	// EndTime only ever grows, by exactly the accumulated pause duration.
	StartTime           int64 `json:"start_time"`
	EndTime             int64 `json:"end_time"`
	TotalPausedDuration int64 `json:"total_paused_duration"`

	State State `json:"-"`
}

// Status returns the stream's lifecycle status.
func (s *Stream) Status() Status {
	return s.State.Status()
}

// streamJSON is the wire form of Stream: the state union flattens to a
// status string plus an optional paused_at.
type streamJSON struct {
	ID                  ID      `json:"id"`
	Sender              Address `json:"sender"`
	Recipient           Address `json:"recipient"`
	Token               Address `json:"token"`
	TotalAmount         int64   `json:"total_amount"`
	Balance             int64   `json:"balance"`
	WithdrawnAmount     int64   `json:"withdrawn_amount"`
	StartTime           int64   `json:"start_time"`
	EndTime             int64   `json:"end_time"`
	TotalPausedDuration int64   `json:"total_paused_duration"`
	Status              Status  `json:"status"`
	PausedAt            *int64  `json:"paused_at,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s Stream) MarshalJSON() ([]byte, error) {
	if s.State == nil {
		return nil, fmt.Errorf("stream %d has no state", s.ID)
	}
	out := streamJSON{
		ID:                  s.ID,
		Sender:              s.Sender,
		Recipient:           s.Recipient,
		Token:               s.Token,
		TotalAmount:         s.TotalAmount,
		Balance:             s.Balance,
		WithdrawnAmount:     s.WithdrawnAmount,
		StartTime:           s.StartTime,
		EndTime:             s.EndTime,
		TotalPausedDuration: s.TotalPausedDuration,
		Status:              s.State.Status(),
	}
	if p, ok := s.State.(Paused); ok {
		pausedAt := p.PausedAt
		out.PausedAt = &pausedAt
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Stream) UnmarshalJSON(data []byte) error {
	var in streamJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	var state State
	switch in.Status {
	case StatusActive:
		state = Active{}
	case StatusPaused:
		if in.PausedAt == nil {
			return fmt.Errorf("paused stream %d missing paused_at", in.ID)
		}
		state = Paused{PausedAt: *in.PausedAt}
	case StatusCanceled:
		state = Canceled{}
	case StatusCompleted:
		state = Completed{}
	default:
		return fmt.Errorf("stream %d has unknown status %q", in.ID, in.Status)
	}

	*s = Stream{
		ID:                  in.ID,
		Sender:              in.Sender,
		Recipient:           in.Recipient,
		Token:               in.Token,
		TotalAmount:         in.TotalAmount,
		Balance:             in.Balance,
		WithdrawnAmount:     in.WithdrawnAmount,
		StartTime:           in.StartTime,
		EndTime:             in.EndTime,
		TotalPausedDuration: in.TotalPausedDuration,
		State:               state,
	}
	return nil
}

// Validate checks the stream's structural invariants.
func (s *Stream) Validate() error {
	if s.ID == 0 {
		return errors.WrapInvalid(fmt.Errorf("stream ID cannot be zero"), "stream", "Validate", "validation")
	}
	if s.Sender == "" || s.Recipient == "" || s.Token == "" {
		return errors.WrapInvalid(fmt.Errorf("stream %d has empty party or token address", s.ID),
			"stream", "Validate", "validation")
	}
	if s.State == nil {
		return errors.WrapInvalid(fmt.Errorf("stream %d has no state", s.ID), "stream", "Validate", "validation")
	}
	if s.TotalAmount <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidAmount, "stream", "Validate", "total amount")
	}
	if s.WithdrawnAmount < 0 || s.WithdrawnAmount > s.Balance || s.Balance > s.TotalAmount {
		return errors.WrapInvalid(
			fmt.Errorf("stream %d violates 0 <= withdrawn (%d) <= balance (%d) <= total (%d)",
				s.ID, s.WithdrawnAmount, s.Balance, s.TotalAmount),
			"stream", "Validate", "balance invariant")
	}
	if s.EndTime <= s.StartTime {
		return errors.WrapInvalid(errors.ErrInvalidTimeRange, "stream", "Validate", "time range")
	}
	if s.TotalPausedDuration < 0 {
		return errors.WrapInvalid(fmt.Errorf("stream %d has negative paused duration", s.ID),
			"stream", "Validate", "pause accounting")
	}
	return nil
}

// Metrics tracks per-stream activity counters.
type Metrics struct {
	LastActivity       int64    `json:"last_activity"`
	TotalWithdrawn     int64    `json:"total_withdrawn"`
	WithdrawalCount    uint32   `json:"withdrawal_count"`
	PauseCount         uint32   `json:"pause_count"`
	TotalDelegations   uint32   `json:"total_delegations"`
	CurrentDelegate    *Address `json:"current_delegate,omitempty"`
	LastDelegationTime int64    `json:"last_delegation_time"`
}

// ProtocolMetrics tracks protocol-wide counters. TotalActiveStreams uses a
// saturating decrement and never goes negative.
type ProtocolMetrics struct {
	TotalActiveStreams  uint64 `json:"total_active_streams"`
	TotalTokensStreamed int64  `json:"total_tokens_streamed"`
	TotalStreamsCreated uint64 `json:"total_streams_created"`
	TotalDelegations    uint64 `json:"total_delegations"`
}

// CancelRequest is one party's pending request for consensual cancellation.
// At most one exists per stream at a time.
type CancelRequest struct {
	StreamID  ID      `json:"stream_id"`
	Requester Address `json:"requester"`
	CreatedAt int64   `json:"created_at"`
}
