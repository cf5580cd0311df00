// Package fundable implements a payment streaming protocol: escrow-backed,
// time-vested token transfers between a sender and a recipient.
//
// A stream locks a total obligation behind a linear vesting curve over a
// [start, end) window. The sender escrows funds up front or in later
// deposits; the recipient (or a registered delegate) withdraws whatever has
// vested, net of a basis-point protocol fee. Streams pause and resume with
// the vesting curve frozen in between, the sender may cancel unilaterally
// for a refund of the unvested remainder, and both parties together may end
// a stream early with a pro-rata split and no fee.
//
// The repository is organized around a small set of collaborating packages:
//
//   - stream: domain types, the vesting calculator, and the fee schedule
//   - engine: the lifecycle controller orchestrating every operation
//   - streamstore: persistence over NATS JetStream KV (or in memory)
//   - auth: the authorization gate with pluggable proof verification
//   - token: the token-transfer collaborator
//   - distributor: one-shot batch payouts with distribution statistics
//   - event: best-effort lifecycle event emission over NATS
//   - metric: the Prometheus observability mirror
//   - service: the JSON HTTP API
//   - cmd/fundable: the server entry point
package fundable
