// Package stream defines the payment-stream domain model: the Stream entity
// with its sealed per-status state, per-stream and protocol-wide metrics,
// cancel requests, the vesting calculator, and the fee engine.
//
// # State Model
//
// A stream's lifecycle status is a sealed union (State) rather than a status
// field with loosely associated optionals. The Paused variant is the only
// one carrying a pause timestamp, so illegal combinations such as an Active
// stream with a paused_at are unrepresentable. On the wire the union
// flattens to a status string plus an optional paused_at field.
//
// # Vesting
//
// Vesting is linear over the effective window (end - start minus accumulated
// pause time). All arithmetic is deterministic integer math; the single
// multiplication that could overflow runs through a 128-bit intermediate.
// Division truncates toward zero, deliberately under-vesting at
// non-divisible ratios.
//
// # Fees
//
// Fee rates are expressed in basis points and capped at 500 (5%). Fees are
// charged on withdrawals only, computed with a split-precision integer
// formula that neither overflows nor loses sub-denominator precision.
//
// All functions in this package are pure: they take snapshots and
// timestamps, mutate nothing, and are safe for concurrent use.
package stream
