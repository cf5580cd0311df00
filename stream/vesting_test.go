package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeStream(total, balance, withdrawn, start, end, paused int64) *Stream {
	return &Stream{
		ID:                  1,
		Sender:              "sender",
		Recipient:           "recipient",
		Token:               "token",
		TotalAmount:         total,
		Balance:             balance,
		WithdrawnAmount:     withdrawn,
		StartTime:           start,
		EndTime:             end,
		TotalPausedDuration: paused,
		State:               Active{},
	}
}

func TestWithdrawable_LinearVesting(t *testing.T) {
	// 1000 tokens over [0, 100]: exactly half vested at t=50.
	s := activeStream(1000, 1000, 0, 0, 100, 0)

	tests := []struct {
		name string
		now  int64
		want int64
	}{
		{"before start", -10, 0},
		{"at start", 0, 0},
		{"quarter", 25, 250},
		{"half", 50, 500},
		{"at end", 100, 1000},
		{"after end", 500, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Withdrawable(s, tt.now))
		})
	}
}

func TestWithdrawable_SubtractsWithdrawn(t *testing.T) {
	s := activeStream(1000, 1000, 300, 0, 100, 0)
	assert.Equal(t, int64(200), Withdrawable(s, 50))
	assert.Equal(t, int64(700), Withdrawable(s, 100))
}

func TestWithdrawable_NonActiveReturnsZero(t *testing.T) {
	tests := []struct {
		name  string
		state State
	}{
		{"paused", Paused{PausedAt: 50}},
		{"canceled", Canceled{}},
		{"completed", Completed{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := activeStream(1000, 1000, 0, 0, 100, 0)
			s.State = tt.state
			assert.Zero(t, Withdrawable(s, 75))
		})
	}
}

func TestWithdrawable_PauseShiftsCurve(t *testing.T) {
	// Pausing for D then resuming shifts the vesting curve by exactly D:
	// after a 40-second pause, the value at time t equals the unpaused
	// value at t-40.
	unpaused := activeStream(1000, 1000, 0, 0, 100, 0)

	resumed := activeStream(1000, 1000, 0, 0, 140, 40)

	for _, sample := range []int64{50, 60, 90, 140, 200} {
		assert.Equal(t, Withdrawable(unpaused, sample-40), Withdrawable(resumed, sample),
			"sample at t=%d", sample)
	}
}

func TestWithdrawable_Monotonic(t *testing.T) {
	s := activeStream(997, 997, 0, 10, 113, 0)

	prev := int64(-1)
	for now := int64(0); now <= 130; now++ {
		v := Withdrawable(s, now)
		require.GreaterOrEqual(t, v, prev, "withdrawable decreased at t=%d", now)
		prev = v
	}
}

func TestWithdrawable_TruncationUnderVests(t *testing.T) {
	// 1000 over 3 seconds: at t=1 exact vesting is 333.33..., integer
	// truncation yields 333, never 334.
	s := activeStream(1000, 1000, 0, 0, 3, 0)
	assert.Equal(t, int64(333), Withdrawable(s, 1))
	assert.Equal(t, int64(666), Withdrawable(s, 2))
	assert.Equal(t, int64(1000), Withdrawable(s, 3))

	// 7 tokens over 9 seconds: every step rounds down.
	s = activeStream(7, 7, 0, 0, 9, 0)
	want := []int64{0, 0, 1, 2, 3, 3, 4, 5, 6, 7}
	for now := int64(0); now <= 9; now++ {
		assert.Equal(t, want[now], Withdrawable(s, now), "t=%d", now)
	}
}

func TestWithdrawable_PausesConsumedWindow(t *testing.T) {
	// Total pause time equal to the window leaves duration 0; guard
	// against divide-by-zero and vest nothing.
	s := activeStream(1000, 1000, 0, 0, 100, 100)
	assert.Zero(t, Withdrawable(s, 250))
}

func TestWithdrawable_LargeAmountsNoOverflow(t *testing.T) {
	// total * elapsed would overflow int64; the 128-bit intermediate must
	// carry it.
	total := int64(5_000_000_000_000_000_000)
	s := activeStream(total, total, 0, 0, 4_000_000_000, 0)
	assert.Equal(t, total/2, Withdrawable(s, 2_000_000_000))
	assert.Equal(t, total, Withdrawable(s, 4_000_000_000))
}

func TestConsensualSplit_ProRata(t *testing.T) {
	// 1000-total stream over 100s, terminated at 25% elapsed.
	s := activeStream(1000, 1000, 0, 0, 100, 0)

	payout, refund := ConsensualSplit(s, 25)
	assert.Equal(t, int64(250), payout)
	assert.Equal(t, int64(750), refund)
	assert.Equal(t, s.TotalAmount, payout+refund+s.WithdrawnAmount)
}

func TestConsensualSplit_CountsWithdrawn(t *testing.T) {
	s := activeStream(1000, 1000, 300, 0, 100, 0)

	payout, refund := ConsensualSplit(s, 50)
	assert.Equal(t, int64(200), payout)
	assert.Equal(t, int64(500), refund)
	assert.Equal(t, s.TotalAmount, payout+refund+s.WithdrawnAmount)
}

func TestConsensualSplit_Clamped(t *testing.T) {
	s := activeStream(1000, 1000, 0, 50, 150, 0)

	// Before the window opens everything refunds.
	payout, refund := ConsensualSplit(s, 10)
	assert.Zero(t, payout)
	assert.Equal(t, int64(1000), refund)

	// After the window closes everything pays out.
	payout, refund = ConsensualSplit(s, 500)
	assert.Equal(t, int64(1000), payout)
	assert.Zero(t, refund)
}

func TestConsensualSplit_PausedFreezesCurve(t *testing.T) {
	// Paused at t=30 on a [0,100] window: however late the approval lands,
	// the split reflects only the 30 seconds streamed.
	s := activeStream(1000, 1000, 0, 0, 100, 0)
	s.State = Paused{PausedAt: 30}

	payout, refund := ConsensualSplit(s, 90)
	assert.Equal(t, int64(300), payout)
	assert.Equal(t, int64(700), refund)
}

func TestConsensualSplit_WithdrawnExceedsClampedVested(t *testing.T) {
	// The recipient already withdrew more than the frozen curve accounts
	// for; withdrawn funds are never clawed back.
	s := activeStream(1000, 1000, 400, 0, 100, 0)
	s.State = Paused{PausedAt: 20}

	payout, refund := ConsensualSplit(s, 60)
	assert.Zero(t, payout)
	assert.Equal(t, int64(600), refund)
	assert.Equal(t, s.TotalAmount, payout+refund+s.WithdrawnAmount)
}
