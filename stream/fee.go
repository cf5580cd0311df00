package stream

// MaxFeeRateBps is the hard cap on the protocol fee rate: 500 basis points (5%).
const MaxFeeRateBps = 500

// FeeRate is a protocol fee rate in basis points (1/100 of a percent).
type FeeRate uint32

// Valid reports whether the rate is within the protocol cap.
func (r FeeRate) Valid() bool {
	return r <= MaxFeeRateBps
}

// CalculateFee computes the protocol fee for a withdrawal amount.
//
// The calculation splits the amount at the basis-point denominator to keep
// full precision without widening:
//
//	fee = (amount / 10000) * rate + ((amount % 10000) * rate) / 10000
//
// The result is never negative and, with rate capped at 500 bps, never
// exceeds the amount. Fees apply to withdrawals only; deposits and refunds
// are never charged.
func CalculateFee(amount int64, rate FeeRate) int64 {
	if rate == 0 || amount <= 0 {
		return 0
	}

	r := int64(rate)
	fee := (amount/10000)*r + ((amount%10000)*r)/10000
	if fee < 0 {
		return 0
	}
	return fee
}
