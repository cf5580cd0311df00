package engine

import (
	"context"

	"github.com/Fundable-Protocol/stellar-client/auth"
	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/event"
	"github.com/Fundable-Protocol/stellar-client/stream"
	"github.com/Fundable-Protocol/stellar-client/streamstore"
)

// SetDelegate registers a withdrawal delegate for the stream. Recipient
// only; the recipient cannot delegate to itself. Setting a new delegate
// replaces any existing one, which is announced as a revocation.
func (e *Engine) SetDelegate(ctx context.Context, caller auth.Caller, id stream.ID, delegate stream.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "SetDelegate"

	s, err := e.store.GetStream(ctx, id)
	if err != nil {
		return err
	}
	if err := e.gate.Require(ctx, caller, s.Recipient); err != nil {
		e.recordFailure(op)
		return err
	}
	if delegate == "" || delegate == s.Recipient {
		e.recordFailure(op)
		return errors.WrapInvalid(errors.ErrInvalidDelegate, "engine", op, "validate delegate")
	}

	previous, err := e.store.GetDelegate(ctx, id)
	if err != nil {
		return err
	}

	now := e.clock.Now()
	m, err := e.loadMetrics(ctx, id)
	if err != nil {
		return err
	}
	m.LastActivity = now
	m.TotalDelegations++
	m.CurrentDelegate = &delegate
	m.LastDelegationTime = now

	pm, err := e.store.GetProtocolMetrics(ctx)
	if err != nil {
		return err
	}
	pm.TotalDelegations++

	txn := streamstore.NewTxn()
	txn.PutDelegate(id, delegate)
	txn.PutMetrics(id, m)
	txn.PutProtocolMetrics(pm)
	if err := e.commit(ctx, op, txn, nil); err != nil {
		e.recordFailure(op)
		return err
	}

	if e.metrics != nil {
		e.metrics.Delegations.Inc()
	}
	if previous != nil && *previous != delegate {
		e.emit(ctx, event.TypeDelegationRevoked, map[string]any{
			"stream_id": id,
			"delegate":  *previous,
		})
	}
	e.emit(ctx, event.TypeDelegationGranted, map[string]any{
		"stream_id": id,
		"delegate":  delegate,
		"recipient": s.Recipient,
	})
	e.bumpRetention(ctx, id)
	e.logger.Info("delegate set", "stream_id", id, "delegate", delegate)
	return nil
}

// RevokeDelegate removes the stream's withdrawal delegate. Recipient only.
// Revoking when no delegate is set is a benign no-op: no record changes, no
// event is emitted, and no counter moves.
func (e *Engine) RevokeDelegate(ctx context.Context, caller auth.Caller, id stream.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "RevokeDelegate"

	s, err := e.store.GetStream(ctx, id)
	if err != nil {
		return err
	}
	if err := e.gate.Require(ctx, caller, s.Recipient); err != nil {
		e.recordFailure(op)
		return err
	}

	current, err := e.store.GetDelegate(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return nil
	}

	m, err := e.loadMetrics(ctx, id)
	if err != nil {
		return err
	}
	m.LastActivity = e.clock.Now()
	m.CurrentDelegate = nil

	txn := streamstore.NewTxn()
	txn.DeleteDelegate(id)
	txn.PutMetrics(id, m)
	if err := e.commit(ctx, op, txn, nil); err != nil {
		e.recordFailure(op)
		return err
	}

	e.emit(ctx, event.TypeDelegationRevoked, map[string]any{
		"stream_id": id,
		"delegate":  *current,
	})
	e.bumpRetention(ctx, id)
	e.logger.Info("delegate revoked", "stream_id", id, "delegate", *current)
	return nil
}
