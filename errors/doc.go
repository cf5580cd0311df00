// Package errors provides standardized error handling for the Fundable
// streaming engine.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, caller may retry), Invalid (bad input or illegal
// state transition, do not retry), and Fatal (unrecoverable, stop
// processing). The engine core itself never retries; classification exists
// so that callers and transports can make that decision.
//
// # Protocol Taxonomy
//
// Every mutating operation of the streaming engine fails with exactly one of
// the protocol sentinels (ErrUnauthorized, ErrInvalidAmount,
// ErrStreamNotFound, ErrInsufficientWithdrawable, ...). These are matched
// with errors.Is, so wrapping for context never hides the condition:
//
//	if err := eng.Withdraw(ctx, caller, id, amount); errors.Is(err, errors.ErrInsufficientWithdrawable) {
//	    // nothing vested yet
//	}
//
// # Error Wrapping
//
// Use the Wrap helpers to add component context while classifying:
//
//	return errors.WrapInvalid(errors.ErrInvalidAmount, "engine", "Deposit", "validate amount")
//
// produces "engine.Deposit: validate amount failed: invalid amount" and
// classifies as Invalid. The classification system integrates with Go's
// standard error handling, supporting errors.Is(), errors.As(), and error
// wrapping chains.
package errors
