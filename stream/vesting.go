package stream

import (
	"math/bits"
)

// Withdrawable returns the amount the recipient could withdraw from the
// stream at the given Unix time. Non-Active streams always return 0; reads
// never error for absence-like conditions.
//
// The vesting curve is linear over the effective window, which excludes all
// accumulated pause time. Integer division truncates toward zero, so the
// calculation under-vests at non-divisible ratios; the recipient never
// receives more than strictly earned. That rounding is the intended policy.
func Withdrawable(s *Stream, now int64) int64 {
	if s.State == nil || s.State.Status() != StatusActive {
		return 0
	}
	if now <= s.StartTime {
		return 0
	}

	rawElapsed := now - s.StartTime
	if now >= s.EndTime {
		rawElapsed = s.EndTime - s.StartTime
	}

	elapsed := saturatingSub(rawElapsed, s.TotalPausedDuration)
	duration := saturatingSub(s.EndTime-s.StartTime, s.TotalPausedDuration)
	if duration == 0 {
		// Pauses consumed the entire window.
		return 0
	}

	return mulDiv(s.TotalAmount, elapsed, duration) - s.WithdrawnAmount
}

// ConsensualSplit computes the pro-rata division of a stream's total for a
// mutually agreed early termination at the given Unix time.
//
// The vested portion uses the Withdrawable formula with elapsed clamped to
// [0, duration]. For a paused stream the curve is frozen at the moment the
// pause began, so the split reflects only time genuinely streamed.
// Invariant: payout + refund + s.WithdrawnAmount == s.TotalAmount.
func ConsensualSplit(s *Stream, now int64) (recipientPayout, senderRefund int64) {
	effective := now
	if p, ok := s.State.(Paused); ok && p.PausedAt < effective {
		effective = p.PausedAt
	}

	var rawElapsed int64
	switch {
	case effective <= s.StartTime:
		rawElapsed = 0
	case effective >= s.EndTime:
		rawElapsed = s.EndTime - s.StartTime
	default:
		rawElapsed = effective - s.StartTime
	}

	elapsed := saturatingSub(rawElapsed, s.TotalPausedDuration)
	duration := saturatingSub(s.EndTime-s.StartTime, s.TotalPausedDuration)

	var vested int64
	if duration > 0 {
		vested = mulDiv(s.TotalAmount, elapsed, duration)
	}
	// Withdrawn funds are already vested regardless of what the clamped
	// formula says; the recipient keeps them.
	if vested < s.WithdrawnAmount {
		vested = s.WithdrawnAmount
	}

	return vested - s.WithdrawnAmount, s.TotalAmount - vested
}

// mulDiv computes total * elapsed / duration through a 128-bit intermediate.
// Requires 0 <= elapsed <= duration and total >= 0, which callers guarantee;
// the quotient then always fits in int64.
func mulDiv(total, elapsed, duration int64) int64 {
	hi, lo := bits.Mul64(uint64(total), uint64(elapsed))
	quo, _ := bits.Div64(hi, lo, uint64(duration))
	return int64(quo)
}

func saturatingSub(a, b int64) int64 {
	if b >= a {
		return 0
	}
	return a - b
}
