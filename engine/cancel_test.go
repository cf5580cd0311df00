package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/event"
	"github.com/Fundable-Protocol/stellar-client/stream"
)

func TestRequestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("either party may request", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		id := f.createStream(t)

		require.NoError(t, f.engine.RequestCancel(ctx, as(sender), id))

		req, err := f.engine.GetCancelRequest(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, req)
		assert.Equal(t, sender, req.Requester)
		require.Len(t, f.sink.ByType(event.TypeCancelRequested), 1)
	})

	t.Run("one pending request at a time", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		id := f.createStream(t)
		require.NoError(t, f.engine.RequestCancel(ctx, as(sender), id))
		require.ErrorIs(t, f.engine.RequestCancel(ctx, as(recipient), id), errors.ErrKeyExists)
	})

	t.Run("outsiders may not", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		id := f.createStream(t)
		require.ErrorIs(t, f.engine.RequestCancel(ctx, as(outsider), id), errors.ErrUnauthorized)
	})

	t.Run("terminal streams refuse requests", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		id := f.createStream(t)
		require.NoError(t, f.engine.CancelStream(ctx, as(sender), id))
		require.ErrorIs(t, f.engine.RequestCancel(ctx, as(recipient), id), errors.ErrStreamCannotBeCanceled)
	})
}

func TestRevokeCancelRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("requester withdraws the request", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		id := f.createStream(t)
		require.NoError(t, f.engine.RequestCancel(ctx, as(sender), id))

		require.NoError(t, f.engine.RevokeCancelRequest(ctx, as(sender), id))

		req, err := f.engine.GetCancelRequest(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, req)
		require.Len(t, f.sink.ByType(event.TypeCancelRequestRevoked), 1)

		// A fresh request may follow.
		require.NoError(t, f.engine.RequestCancel(ctx, as(recipient), id))
	})

	t.Run("only the requester may revoke", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		id := f.createStream(t)
		require.NoError(t, f.engine.RequestCancel(ctx, as(sender), id))
		require.ErrorIs(t, f.engine.RevokeCancelRequest(ctx, as(recipient), id), errors.ErrUnauthorized)
	})

	t.Run("nothing pending", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		id := f.createStream(t)
		require.ErrorIs(t, f.engine.RevokeCancelRequest(ctx, as(sender), id), errors.ErrKeyNotFound)
	})
}

func TestCancelConsensual(t *testing.T) {
	ctx := context.Background()

	t.Run("splits pro rata at a quarter elapsed", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		id := f.createStream(t)
		f.clock.Set(125)

		require.NoError(t, f.engine.RequestCancel(ctx, as(sender), id))
		require.NoError(t, f.engine.CancelConsensual(ctx, as(recipient), id))

		assert.Equal(t, int64(250), f.ledger.Balance(usdc, recipient))
		assert.Equal(t, int64(999_750), f.ledger.Balance(usdc, sender))
		assert.Zero(t, f.ledger.Balance(usdc, escrow))

		s, err := f.engine.GetStream(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, stream.StatusCanceled, s.Status())

		req, err := f.engine.GetCancelRequest(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, req)

		events := f.sink.ByType(event.TypeConsensualCancel)
		require.Len(t, events, 1)
		assert.Equal(t, int64(250), events[0].Data["payout"])
		assert.Equal(t, int64(750), events[0].Data["refund"])
	})

	t.Run("no fee on either leg", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{feeRate: 500})
		id := f.createStream(t)
		f.clock.Set(150)

		require.NoError(t, f.engine.RequestCancel(ctx, as(recipient), id))
		require.NoError(t, f.engine.CancelConsensual(ctx, as(sender), id))

		assert.Equal(t, int64(500), f.ledger.Balance(usdc, recipient))
		assert.Zero(t, f.ledger.Balance(usdc, collector))
	})

	t.Run("pause freezes the split", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		id := f.createStream(t)
		f.clock.Set(125)
		require.NoError(t, f.engine.PauseStream(ctx, as(sender), id))

		f.clock.Set(175)
		require.NoError(t, f.engine.RequestCancel(ctx, as(sender), id))
		require.NoError(t, f.engine.CancelConsensual(ctx, as(recipient), id))

		// Vesting stopped at the pause, not at approval time.
		assert.Equal(t, int64(250), f.ledger.Balance(usdc, recipient))
		assert.Equal(t, int64(999_750), f.ledger.Balance(usdc, sender))
	})

	t.Run("prior withdrawals reduce the payout", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		id := f.createStream(t)
		f.clock.Set(125)
		require.NoError(t, f.engine.Withdraw(ctx, as(recipient), id, 200))

		f.clock.Set(150)
		require.NoError(t, f.engine.RequestCancel(ctx, as(sender), id))
		require.NoError(t, f.engine.CancelConsensual(ctx, as(recipient), id))

		// 500 vested at the midpoint: 200 already withdrawn, 300 paid out
		// now, 500 refunded. Everything the sender escrowed is accounted for.
		assert.Equal(t, int64(500), f.ledger.Balance(usdc, recipient))
		assert.Equal(t, int64(999_500), f.ledger.Balance(usdc, sender))
		assert.Zero(t, f.ledger.Balance(usdc, escrow))
	})

	t.Run("approver must be the counterparty", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		id := f.createStream(t)
		require.NoError(t, f.engine.RequestCancel(ctx, as(sender), id))

		require.ErrorIs(t, f.engine.CancelConsensual(ctx, as(sender), id), errors.ErrUnauthorized)
		require.ErrorIs(t, f.engine.CancelConsensual(ctx, as(outsider), id), errors.ErrUnauthorized)
	})

	t.Run("requires a pending request", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		id := f.createStream(t)
		require.ErrorIs(t, f.engine.CancelConsensual(ctx, as(recipient), id), errors.ErrKeyNotFound)
	})

	t.Run("before start everything returns to the sender", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		id := f.createStream(t)
		// Clock at 50, stream starts at 100.
		require.NoError(t, f.engine.RequestCancel(ctx, as(recipient), id))
		require.NoError(t, f.engine.CancelConsensual(ctx, as(sender), id))

		assert.Zero(t, f.ledger.Balance(usdc, recipient))
		assert.Equal(t, int64(1_000_000), f.ledger.Balance(usdc, sender))
	})

	t.Run("unilateral cancel clears a pending request", func(t *testing.T) {
		f := newFixture(t, fixtureOpts{})
		id := f.createStream(t)
		require.NoError(t, f.engine.RequestCancel(ctx, as(recipient), id))
		require.NoError(t, f.engine.CancelStream(ctx, as(sender), id))

		req, err := f.engine.GetCancelRequest(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, req)
	})
}
