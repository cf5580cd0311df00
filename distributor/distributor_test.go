package distributor_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fundable-Protocol/stellar-client/auth"
	"github.com/Fundable-Protocol/stellar-client/distributor"
	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/event"
	"github.com/Fundable-Protocol/stellar-client/pkg/timestamp"
	"github.com/Fundable-Protocol/stellar-client/stream"
	"github.com/Fundable-Protocol/stellar-client/token"
)

const (
	admin      = stream.Address("admin")
	feeAddress = stream.Address("fees")
	sender     = stream.Address("payer")
	usdc       = stream.Address("usdc")
)

var recipients = []stream.Address{"r1", "r2", "r3"}

type fixture struct {
	dist   *distributor.Distributor
	store  *distributor.MemoryStore
	ledger *token.Ledger
	clock  *timestamp.ManualClock
	sink   *event.CaptureSink
}

func newFixture(t *testing.T, feeBps uint32) *fixture {
	t.Helper()

	gate, err := auth.NewGate(auth.AcceptAll{}, auth.DelegateAdditive)
	require.NoError(t, err)

	f := &fixture{
		store:  distributor.NewMemoryStore(),
		ledger: token.NewLedger(),
		clock:  timestamp.NewManualClock(12345),
		sink:   &event.CaptureSink{},
	}
	f.ledger.Mint(usdc, sender, 100_000)

	f.dist, err = distributor.New(distributor.Options{
		Store:  f.store,
		Tokens: f.ledger,
		Clock:  f.clock,
		Gate:   gate,
		Sink:   f.sink,
	})
	require.NoError(t, err)
	require.NoError(t, f.dist.Initialize(context.Background(), as(admin), admin, feeAddress, feeBps))
	return f
}

func as(p stream.Address) auth.Caller {
	return auth.Caller{Principal: p}
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 250)

	got, err := f.dist.Admin(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, got)

	err = f.dist.Initialize(ctx, as(admin), admin, feeAddress, 250)
	require.ErrorIs(t, err, errors.ErrAlreadyInitialized)
}

func TestDistributeEqual(t *testing.T) {
	ctx := context.Background()

	t.Run("splits evenly", func(t *testing.T) {
		f := newFixture(t, 0)
		require.NoError(t, f.dist.DistributeEqual(ctx, as(sender), sender, usdc, 900, recipients))

		for _, r := range recipients {
			assert.Equal(t, int64(300), f.ledger.Balance(usdc, r))
		}

		count, err := f.dist.TotalDistributions(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), count)
		total, err := f.dist.TotalDistributedAmount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(900), total)
		require.Len(t, f.sink.ByType(event.TypeDistribution), 1)
	})

	t.Run("fee charged on top", func(t *testing.T) {
		f := newFixture(t, 250)
		two := recipients[:2]
		require.NoError(t, f.dist.DistributeEqual(ctx, as(sender), sender, usdc, 1000, two))

		assert.Equal(t, int64(500), f.ledger.Balance(usdc, two[0]))
		assert.Equal(t, int64(500), f.ledger.Balance(usdc, two[1]))
		// 2.5% of 1000.
		assert.Equal(t, int64(25), f.ledger.Balance(usdc, feeAddress))
		assert.Equal(t, int64(98_975), f.ledger.Balance(usdc, sender))
	})

	t.Run("fee and stats use the requested total, not the truncated split", func(t *testing.T) {
		f := newFixture(t, 250)
		require.NoError(t, f.dist.DistributeEqual(ctx, as(sender), sender, usdc, 1000, recipients))

		// 1000/3 truncates to 333 per head; the remainder stays with the
		// sender but the fee is still 2.5% of the requested 1000.
		for _, r := range recipients {
			assert.Equal(t, int64(333), f.ledger.Balance(usdc, r))
		}
		assert.Equal(t, int64(25), f.ledger.Balance(usdc, feeAddress))
		assert.Equal(t, int64(100_000-999-25), f.ledger.Balance(usdc, sender))

		total, err := f.dist.TotalDistributedAmount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), total)

		ts, err := f.dist.TokenStats(ctx, usdc)
		require.NoError(t, err)
		require.NotNil(t, ts)
		assert.Equal(t, int64(1000), ts.TotalAmount)
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture(t, 0)

		err := f.dist.DistributeEqual(ctx, as(sender), sender, usdc, 900, nil)
		require.ErrorIs(t, err, errors.ErrInvalidRecipient)

		err = f.dist.DistributeEqual(ctx, as(sender), sender, usdc, 0, recipients)
		require.ErrorIs(t, err, errors.ErrInvalidAmount)

		// Too small for everyone to receive a unit.
		err = f.dist.DistributeEqual(ctx, as(sender), sender, usdc, 2, recipients)
		require.ErrorIs(t, err, errors.ErrInvalidAmount)

		err = f.dist.DistributeEqual(ctx, as("imposter"), sender, usdc, 900, recipients)
		require.ErrorIs(t, err, errors.ErrUnauthorized)
	})

	t.Run("insufficient balance reverses completed legs", func(t *testing.T) {
		f := newFixture(t, 0)
		poor := stream.Address("poor")
		f.ledger.Mint(usdc, poor, 500)

		err := f.dist.DistributeEqual(ctx, as(poor), poor, usdc, 900, recipients)
		require.ErrorIs(t, err, errors.ErrTransferFailed)

		assert.Equal(t, int64(500), f.ledger.Balance(usdc, poor))
		for _, r := range recipients {
			assert.Zero(t, f.ledger.Balance(usdc, r))
		}
		count, err := f.dist.TotalDistributions(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestDistributeWeighted(t *testing.T) {
	ctx := context.Background()

	t.Run("per-recipient amounts", func(t *testing.T) {
		f := newFixture(t, 250)
		amounts := []int64{100, 200, 300}
		require.NoError(t, f.dist.DistributeWeighted(ctx, as(sender), sender, usdc, recipients, amounts))

		for i, r := range recipients {
			assert.Equal(t, amounts[i], f.ledger.Balance(usdc, r))
		}
		// 2.5% of the 600 sum = 15.
		assert.Equal(t, int64(15), f.ledger.Balance(usdc, feeAddress))

		total, err := f.dist.TotalDistributedAmount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(600), total)
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture(t, 0)

		err := f.dist.DistributeWeighted(ctx, as(sender), sender, usdc, recipients, []int64{100, 200})
		require.ErrorIs(t, err, errors.ErrInvalidAmount)

		err = f.dist.DistributeWeighted(ctx, as(sender), sender, usdc, recipients, []int64{100, 0, 300})
		require.ErrorIs(t, err, errors.ErrInvalidAmount)

		err = f.dist.DistributeWeighted(ctx, as(sender), sender, usdc, nil, nil)
		require.ErrorIs(t, err, errors.ErrInvalidRecipient)
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	one := recipients[:1]

	require.NoError(t, f.dist.DistributeEqual(ctx, as(sender), sender, usdc, 1000, one))
	require.NoError(t, f.dist.DistributeEqual(ctx, as(sender), sender, usdc, 2500, one))
	require.NoError(t, f.dist.DistributeWeighted(ctx, as(sender), sender, usdc, one, []int64{300}))

	count, err := f.dist.TotalDistributions(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
	total, err := f.dist.TotalDistributedAmount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3800), total)

	ts, err := f.dist.TokenStats(ctx, usdc)
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, int64(3800), ts.TotalAmount)
	assert.Equal(t, uint32(3), ts.DistributionCount)
	assert.Equal(t, int64(12345), ts.LastTime)

	us, err := f.dist.UserStats(ctx, sender)
	require.NoError(t, err)
	require.NotNil(t, us)
	assert.Equal(t, uint32(3), us.DistributionsInitiated)
	assert.Equal(t, int64(3800), us.TotalAmount)

	unknown, err := f.dist.TokenStats(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	two := recipients[:2]

	require.NoError(t, f.dist.DistributeEqual(ctx, as(sender), sender, usdc, 1000, two))
	f.clock.Advance(10)
	require.NoError(t, f.dist.DistributeEqual(ctx, as(sender), sender, usdc, 2000, two))

	history, err := f.dist.History(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, sender, history[0].Sender)
	assert.Equal(t, usdc, history[0].Token)
	assert.Equal(t, int64(1000), history[0].Amount)
	assert.Equal(t, uint32(2), history[0].RecipientsCount)
	assert.Equal(t, int64(12345), history[0].Timestamp)
	assert.Equal(t, int64(2000), history[1].Amount)

	tail, err := f.dist.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(2000), tail[0].Amount)

	empty, err := f.dist.History(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	// Oversized windows whose start+limit would wrap must clamp, not panic.
	huge, err := f.dist.History(ctx, 1, math.MaxUint64)
	require.NoError(t, err)
	require.Len(t, huge, 1)
	assert.Equal(t, int64(2000), huge[0].Amount)

	none, err := f.dist.History(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSetProtocolFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 250)

	require.NoError(t, f.dist.SetProtocolFee(ctx, as(admin), 500))
	require.NoError(t, f.dist.DistributeEqual(ctx, as(sender), sender, usdc, 1000, recipients[:1]))
	assert.Equal(t, int64(50), f.ledger.Balance(usdc, feeAddress))

	require.ErrorIs(t, f.dist.SetProtocolFee(ctx, as(sender), 100), errors.ErrUnauthorized)
	require.ErrorIs(t, f.dist.SetProtocolFee(ctx, as(admin), 10_001), errors.ErrFeeTooHigh)
}
