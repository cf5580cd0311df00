package engine

import (
	"context"

	"github.com/Fundable-Protocol/stellar-client/auth"
	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/event"
	"github.com/Fundable-Protocol/stellar-client/stream"
	"github.com/Fundable-Protocol/stellar-client/streamstore"
)

// RequestCancel records one party's request for consensual cancellation.
// Either the sender or the recipient may request; at most one request is
// pending per stream at a time.
func (e *Engine) RequestCancel(ctx context.Context, caller auth.Caller, id stream.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "RequestCancel"

	s, err := e.store.GetStream(ctx, id)
	if err != nil {
		return err
	}
	if err := e.gate.Require(ctx, caller, s.Sender, s.Recipient); err != nil {
		e.recordFailure(op)
		return err
	}
	if s.Status().Terminal() {
		e.recordFailure(op)
		return errors.WrapInvalid(errors.ErrStreamCannotBeCanceled, "engine", op, "stream is terminal")
	}

	now := e.clock.Now()
	txn := streamstore.NewTxn()
	txn.CreateCancelRequest(&stream.CancelRequest{
		StreamID:  id,
		Requester: caller.Principal,
		CreatedAt: now,
	})
	if err := e.commit(ctx, op, txn, nil); err != nil {
		e.recordFailure(op)
		if errors.Is(err, errors.ErrKeyExists) {
			return errors.WrapInvalid(errors.ErrKeyExists, "engine", op, "cancel request already pending")
		}
		return err
	}

	e.emit(ctx, event.TypeCancelRequested, map[string]any{
		"stream_id": id,
		"requester": caller.Principal,
	})
	e.bumpRetention(ctx, id)
	e.logger.Info("cancel requested", "stream_id", id, "requester", caller.Principal)
	return nil
}

// RevokeCancelRequest withdraws a pending cancel request. Only the party
// that made the request may revoke it.
func (e *Engine) RevokeCancelRequest(ctx context.Context, caller auth.Caller, id stream.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "RevokeCancelRequest"

	if _, err := e.store.GetStream(ctx, id); err != nil {
		return err
	}
	req, err := e.store.GetCancelRequest(ctx, id)
	if err != nil {
		return err
	}
	if req == nil {
		e.recordFailure(op)
		return errors.WrapInvalid(errors.ErrKeyNotFound, "engine", op, "no pending cancel request")
	}
	if err := e.gate.Require(ctx, caller, req.Requester); err != nil {
		e.recordFailure(op)
		return err
	}

	txn := streamstore.NewTxn()
	txn.DeleteCancelRequest(id)
	if err := e.commit(ctx, op, txn, nil); err != nil {
		e.recordFailure(op)
		return err
	}

	e.emit(ctx, event.TypeCancelRequestRevoked, map[string]any{
		"stream_id": id,
		"requester": req.Requester,
	})
	e.bumpRetention(ctx, id)
	e.logger.Info("cancel request revoked", "stream_id", id)
	return nil
}

// CancelConsensual completes a pending cancel request. The approver must be
// the counterparty of the requester. The stream's unpaid remainder splits
// pro-rata along the vesting curve: the vested-but-unwithdrawn share goes to
// the recipient and the rest returns to the sender, with no fee on either
// leg. The stream ends Canceled.
func (e *Engine) CancelConsensual(ctx context.Context, caller auth.Caller, id stream.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "CancelConsensual"

	s, err := e.store.GetStream(ctx, id)
	if err != nil {
		return err
	}
	req, err := e.store.GetCancelRequest(ctx, id)
	if err != nil {
		return err
	}
	if req == nil {
		e.recordFailure(op)
		return errors.WrapInvalid(errors.ErrKeyNotFound, "engine", op, "no pending cancel request")
	}

	approver := s.Sender
	if req.Requester == s.Sender {
		approver = s.Recipient
	}
	if err := e.gate.Require(ctx, caller, approver); err != nil {
		e.recordFailure(op)
		return err
	}
	if s.Status().Terminal() {
		e.recordFailure(op)
		return errors.WrapInvalid(errors.ErrStreamCannotBeCanceled, "engine", op, "stream is terminal")
	}

	now := e.clock.Now()
	payout, refund := stream.ConsensualSplit(s, now)
	// The split is defined over the full total; when the stream is not fully
	// funded only the escrowed remainder can actually move. The recipient's
	// vested share is honored first, the sender takes what is left.
	if escrowed := s.Balance - s.WithdrawnAmount; payout+refund > escrowed {
		if payout > escrowed {
			payout = escrowed
		}
		refund = escrowed - payout
	}

	wasActive := s.Status() == stream.StatusActive
	s.WithdrawnAmount += payout
	if s.WithdrawnAmount > s.Balance {
		s.WithdrawnAmount = s.Balance
	}
	s.State = stream.Canceled{}

	m, err := e.loadMetrics(ctx, id)
	if err != nil {
		return err
	}
	m.LastActivity = now
	if payout > 0 {
		m.TotalWithdrawn += payout
		m.WithdrawalCount++
	}

	txn := streamstore.NewTxn()
	txn.PutStream(s)
	txn.PutMetrics(id, m)
	txn.DeleteCancelRequest(id)

	var pm *stream.ProtocolMetrics
	if wasActive {
		pm, err = e.store.GetProtocolMetrics(ctx)
		if err != nil {
			return err
		}
		if pm.TotalActiveStreams > 0 {
			pm.TotalActiveStreams--
		}
		txn.PutProtocolMetrics(pm)
	}

	var transfers []transferOp
	if payout > 0 {
		transfers = append(transfers, transferOp{token: s.Token, from: e.escrow, to: s.Recipient, amount: payout})
	}
	if refund > 0 {
		transfers = append(transfers, transferOp{token: s.Token, from: e.escrow, to: s.Sender, amount: refund})
	}
	if err := e.commit(ctx, op, txn, transfers); err != nil {
		e.recordFailure(op)
		return err
	}

	if e.metrics != nil {
		if wasActive {
			e.metrics.ActiveStreams.Dec()
		}
		e.metrics.Transitions.WithLabelValues(string(stream.StatusCanceled)).Inc()
		if payout > 0 {
			e.metrics.TokensPaidOut.Add(float64(payout))
		}
	}
	e.emit(ctx, event.TypeConsensualCancel, map[string]any{
		"stream_id": id,
		"requester": req.Requester,
		"approver":  caller.Principal,
		"payout":    payout,
		"refund":    refund,
	})
	e.bumpRetention(ctx, id)
	e.logger.Info("stream canceled by mutual consent",
		"stream_id", id, "payout", payout, "refund", refund)
	return nil
}
