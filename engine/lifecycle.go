package engine

import (
	"context"

	"github.com/Fundable-Protocol/stellar-client/auth"
	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/event"
	"github.com/Fundable-Protocol/stellar-client/stream"
	"github.com/Fundable-Protocol/stellar-client/streamstore"
)

// CreateStream opens a new stream from sender to recipient. The initial
// deposit (which may be zero) moves from the sender into escrow, and the
// stream starts Active. Returns the new stream's id.
func (e *Engine) CreateStream(ctx context.Context, caller auth.Caller, sender, recipient, token stream.Address, totalAmount, initialDeposit, startTime, endTime int64) (stream.ID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "CreateStream"

	inst, err := e.instance(ctx)
	if err != nil {
		return 0, err
	}
	if err := e.gate.Require(ctx, caller, sender); err != nil {
		e.recordFailure(op)
		return 0, err
	}
	if totalAmount <= 0 {
		e.recordFailure(op)
		return 0, errors.WrapInvalid(errors.ErrInvalidAmount, "engine", op, "validate total amount")
	}
	if initialDeposit < 0 || initialDeposit > totalAmount {
		e.recordFailure(op)
		return 0, errors.WrapInvalid(errors.ErrInvalidAmount, "engine", op, "validate initial deposit")
	}
	if endTime <= startTime {
		e.recordFailure(op)
		return 0, errors.WrapInvalid(errors.ErrInvalidTimeRange, "engine", op, "validate time range")
	}
	if recipient == "" || recipient == sender {
		e.recordFailure(op)
		return 0, errors.WrapInvalid(errors.ErrInvalidRecipient, "engine", op, "validate recipient")
	}

	now := e.clock.Now()
	inst.StreamCount++
	id := stream.ID(inst.StreamCount)

	s := &stream.Stream{
		ID:          id,
		Sender:      sender,
		Recipient:   recipient,
		Token:       token,
		TotalAmount: totalAmount,
		Balance:     initialDeposit,
		StartTime:   startTime,
		EndTime:     endTime,
		State:       stream.Active{},
	}

	pm, err := e.store.GetProtocolMetrics(ctx)
	if err != nil {
		return 0, err
	}
	pm.TotalActiveStreams++
	pm.TotalStreamsCreated++
	pm.TotalTokensStreamed += totalAmount

	txn := streamstore.NewTxn()
	txn.PutInstance(inst)
	txn.CreateStream(s)
	txn.PutMetrics(id, &stream.Metrics{LastActivity: now})
	txn.PutProtocolMetrics(pm)

	var transfers []transferOp
	if initialDeposit > 0 {
		transfers = append(transfers, transferOp{token: token, from: sender, to: e.escrow, amount: initialDeposit})
	}

	if err := e.commit(ctx, op, txn, transfers); err != nil {
		e.recordFailure(op)
		return 0, err
	}

	if e.metrics != nil {
		e.metrics.ActiveStreams.Inc()
		e.metrics.StreamsCreated.Inc()
		e.metrics.TokensStreamed.Add(float64(totalAmount))
		e.metrics.Transitions.WithLabelValues(string(stream.StatusActive)).Inc()
	}
	e.emit(ctx, event.TypeStreamCreated, map[string]any{
		"stream_id":       id,
		"sender":          sender,
		"recipient":       recipient,
		"token":           token,
		"total_amount":    totalAmount,
		"initial_deposit": initialDeposit,
		"start_time":      startTime,
		"end_time":        endTime,
	})
	e.logger.Info("stream created",
		"stream_id", id, "sender", sender, "recipient", recipient,
		"total_amount", totalAmount, "initial_deposit", initialDeposit)
	return id, nil
}

// Deposit escrows further funds into an existing stream. Sender only; the
// cumulative balance may never exceed the stream's total.
func (e *Engine) Deposit(ctx context.Context, caller auth.Caller, id stream.ID, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "Deposit"

	s, err := e.store.GetStream(ctx, id)
	if err != nil {
		return err
	}
	if err := e.gate.Require(ctx, caller, s.Sender); err != nil {
		e.recordFailure(op)
		return err
	}
	if s.Status().Terminal() {
		e.recordFailure(op)
		return errors.WrapInvalid(errors.ErrStreamNotActive, "engine", op, "stream is terminal")
	}
	if amount <= 0 {
		e.recordFailure(op)
		return errors.WrapInvalid(errors.ErrInvalidAmount, "engine", op, "validate amount")
	}
	// Compared against the remaining headroom so the sum cannot wrap.
	if amount > s.TotalAmount-s.Balance {
		e.recordFailure(op)
		return errors.WrapInvalid(errors.ErrDepositExceedsTotal, "engine", op, "validate balance bound")
	}

	s.Balance += amount
	m, err := e.loadMetrics(ctx, id)
	if err != nil {
		return err
	}
	m.LastActivity = e.clock.Now()

	txn := streamstore.NewTxn()
	txn.PutStream(s)
	txn.PutMetrics(id, m)

	transfers := []transferOp{{token: s.Token, from: s.Sender, to: e.escrow, amount: amount}}
	if err := e.commit(ctx, op, txn, transfers); err != nil {
		e.recordFailure(op)
		return err
	}

	e.emit(ctx, event.TypeStreamDeposit, map[string]any{
		"stream_id": id,
		"amount":    amount,
		"balance":   s.Balance,
	})
	e.bumpRetention(ctx, id)
	e.logger.Info("stream deposit", "stream_id", id, "amount", amount, "balance", s.Balance)
	return nil
}

// Withdraw pays out vested funds from the stream. The recipient, or a
// registered delegate per the gate's policy, may withdraw. The protocol fee
// is deducted from the amount and sent to the fee collector; the remainder
// goes to the recipient. Withdrawing the full total completes the stream.
func (e *Engine) Withdraw(ctx context.Context, caller auth.Caller, id stream.ID, amount int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.withdraw(ctx, caller, id, amount, false)
}

// WithdrawMax withdraws everything currently withdrawable from the stream.
// Fails with ErrInsufficientWithdrawable when nothing is available.
func (e *Engine) WithdrawMax(ctx context.Context, caller auth.Caller, id stream.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.withdraw(ctx, caller, id, 0, true)
}

func (e *Engine) withdraw(ctx context.Context, caller auth.Caller, id stream.ID, amount int64, max bool) error {
	const op = "Withdraw"

	inst, err := e.instance(ctx)
	if err != nil {
		return err
	}
	s, err := e.store.GetStream(ctx, id)
	if err != nil {
		return err
	}
	delegate, err := e.store.GetDelegate(ctx, id)
	if err != nil {
		return err
	}
	if err := e.gate.RequireWithdraw(ctx, caller, s.Recipient, delegate); err != nil {
		e.recordWithdrawFailure(op)
		return err
	}

	now := e.clock.Now()
	available := stream.Withdrawable(s, now)
	// Escrowed funds bound the payout: a vested amount not yet deposited
	// cannot be withdrawn.
	if escrowed := s.Balance - s.WithdrawnAmount; available > escrowed {
		available = escrowed
	}
	if max {
		amount = available
	}
	if amount <= 0 || amount > available {
		e.recordWithdrawFailure(op)
		return errors.WrapInvalid(errors.ErrInsufficientWithdrawable, "engine", op, "validate amount")
	}

	fee := stream.CalculateFee(amount, inst.FeeRateBps)
	net := amount - fee

	s.WithdrawnAmount += amount
	completed := s.WithdrawnAmount >= s.TotalAmount
	if completed {
		s.State = stream.Completed{}
	}

	m, err := e.loadMetrics(ctx, id)
	if err != nil {
		return err
	}
	m.LastActivity = now
	m.TotalWithdrawn += amount
	m.WithdrawalCount++

	txn := streamstore.NewTxn()
	txn.PutStream(s)
	txn.PutMetrics(id, m)

	var pm *stream.ProtocolMetrics
	if completed {
		pm, err = e.store.GetProtocolMetrics(ctx)
		if err != nil {
			return err
		}
		if pm.TotalActiveStreams > 0 {
			pm.TotalActiveStreams--
		}
		txn.PutProtocolMetrics(pm)
	}

	transfers := []transferOp{{token: s.Token, from: e.escrow, to: s.Recipient, amount: net}}
	if fee > 0 {
		transfers = append(transfers, transferOp{token: s.Token, from: e.escrow, to: inst.FeeCollector, amount: fee})
	}
	if err := e.commit(ctx, op, txn, transfers); err != nil {
		e.recordWithdrawFailure(op)
		return err
	}

	if e.metrics != nil {
		e.metrics.Withdrawals.WithLabelValues("success").Inc()
		e.metrics.TokensPaidOut.Add(float64(net))
		if fee > 0 {
			e.metrics.FeesCollected.Add(float64(fee))
		}
		if completed {
			e.metrics.ActiveStreams.Dec()
			e.metrics.Transitions.WithLabelValues(string(stream.StatusCompleted)).Inc()
		}
	}

	e.emit(ctx, event.TypeWithdrawal, map[string]any{
		"stream_id": id,
		"amount":    amount,
		"fee":       fee,
		"net":       net,
		"recipient": s.Recipient,
		"caller":    caller.Principal,
	})
	if fee > 0 {
		e.emit(ctx, event.TypeFeeCollected, map[string]any{
			"stream_id": id,
			"fee":       fee,
			"collector": inst.FeeCollector,
		})
	}
	if completed {
		e.emit(ctx, event.TypeStreamCompleted, map[string]any{"stream_id": id})
	}
	e.bumpRetention(ctx, id)
	e.logger.Info("withdrawal",
		"stream_id", id, "amount", amount, "fee", fee, "net", net, "completed", completed)
	return nil
}

func (e *Engine) recordWithdrawFailure(op string) {
	if e.metrics != nil {
		e.metrics.Withdrawals.WithLabelValues("failure").Inc()
	}
	e.recordFailure(op)
}

// PauseStream freezes vesting on an Active stream. Sender only.
func (e *Engine) PauseStream(ctx context.Context, caller auth.Caller, id stream.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "PauseStream"

	s, err := e.store.GetStream(ctx, id)
	if err != nil {
		return err
	}
	if err := e.gate.Require(ctx, caller, s.Sender); err != nil {
		e.recordFailure(op)
		return err
	}
	if s.Status() != stream.StatusActive {
		e.recordFailure(op)
		return errors.WrapInvalid(errors.ErrStreamNotActive, "engine", op, "stream not active")
	}

	now := e.clock.Now()
	s.State = stream.Paused{PausedAt: now}

	m, err := e.loadMetrics(ctx, id)
	if err != nil {
		return err
	}
	m.LastActivity = now
	m.PauseCount++

	pm, err := e.store.GetProtocolMetrics(ctx)
	if err != nil {
		return err
	}
	if pm.TotalActiveStreams > 0 {
		pm.TotalActiveStreams--
	}

	txn := streamstore.NewTxn()
	txn.PutStream(s)
	txn.PutMetrics(id, m)
	txn.PutProtocolMetrics(pm)
	if err := e.commit(ctx, op, txn, nil); err != nil {
		e.recordFailure(op)
		return err
	}

	if e.metrics != nil {
		e.metrics.ActiveStreams.Dec()
		e.metrics.Transitions.WithLabelValues(string(stream.StatusPaused)).Inc()
	}
	e.emit(ctx, event.TypeStreamPaused, map[string]any{"stream_id": id, "paused_at": now})
	e.bumpRetention(ctx, id)
	e.logger.Info("stream paused", "stream_id", id)
	return nil
}

// ResumeStream resumes a Paused stream. The pause duration extends the end
// time, so the vesting curve continues exactly where it froze. Sender only.
func (e *Engine) ResumeStream(ctx context.Context, caller auth.Caller, id stream.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "ResumeStream"

	s, err := e.store.GetStream(ctx, id)
	if err != nil {
		return err
	}
	if err := e.gate.Require(ctx, caller, s.Sender); err != nil {
		e.recordFailure(op)
		return err
	}
	paused, ok := s.State.(stream.Paused)
	if !ok {
		e.recordFailure(op)
		return errors.WrapInvalid(errors.ErrStreamNotPaused, "engine", op, "stream not paused")
	}

	now := e.clock.Now()
	var delta int64
	if now > paused.PausedAt {
		delta = now - paused.PausedAt
	}
	s.TotalPausedDuration += delta
	s.EndTime += delta
	s.State = stream.Active{}

	m, err := e.loadMetrics(ctx, id)
	if err != nil {
		return err
	}
	m.LastActivity = now

	pm, err := e.store.GetProtocolMetrics(ctx)
	if err != nil {
		return err
	}
	pm.TotalActiveStreams++

	txn := streamstore.NewTxn()
	txn.PutStream(s)
	txn.PutMetrics(id, m)
	txn.PutProtocolMetrics(pm)
	if err := e.commit(ctx, op, txn, nil); err != nil {
		e.recordFailure(op)
		return err
	}

	if e.metrics != nil {
		e.metrics.ActiveStreams.Inc()
		e.metrics.Transitions.WithLabelValues(string(stream.StatusActive)).Inc()
	}
	e.emit(ctx, event.TypeStreamResumed, map[string]any{
		"stream_id":      id,
		"pause_duration": delta,
		"end_time":       s.EndTime,
	})
	e.bumpRetention(ctx, id)
	e.logger.Info("stream resumed", "stream_id", id, "pause_duration", delta)
	return nil
}

// CancelStream terminates an Active or Paused stream unilaterally. Sender
// only. The unwithdrawn escrowed balance is refunded to the sender; funds
// already withdrawn stay with the recipient.
func (e *Engine) CancelStream(ctx context.Context, caller auth.Caller, id stream.ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "CancelStream"

	s, err := e.store.GetStream(ctx, id)
	if err != nil {
		return err
	}
	if err := e.gate.Require(ctx, caller, s.Sender); err != nil {
		e.recordFailure(op)
		return err
	}
	if s.Status().Terminal() {
		e.recordFailure(op)
		return errors.WrapInvalid(errors.ErrStreamCannotBeCanceled, "engine", op, "stream is terminal")
	}

	wasActive := s.Status() == stream.StatusActive
	refund := s.Balance - s.WithdrawnAmount
	if refund < 0 {
		refund = 0
	}
	s.State = stream.Canceled{}

	now := e.clock.Now()
	m, err := e.loadMetrics(ctx, id)
	if err != nil {
		return err
	}
	m.LastActivity = now

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
	}
	e.emit(ctx, event.TypeStreamCanceled, map[string]any{
		"stream_id": id,
		"refund":    refund,
		"sender":    s.Sender,
	})
	e.bumpRetention(ctx, id)
	e.logger.Info("stream canceled", "stream_id", id, "refund", refund)
	return nil
}
