// Package auth centralizes authorization for the streaming engine. Every
// mutating operation passes through the Gate exactly once, with the set of
// principals permitted to invoke it; scattering per-operation checks across
// the engine is deliberately avoided.
package auth

import (
	"context"

	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/stream"
)

// Verifier is the signature/authorization collaborator. Verify confirms that
// the caller has proven control of the given principal; the gate never
// interprets proofs itself.
type Verifier interface {
	Verify(ctx context.Context, principal stream.Address, proof []byte) error
}

// Caller is the identity invoking an operation, together with whatever proof
// the transport collected for it.
type Caller struct {
	Principal stream.Address
	Proof     []byte
}

// DelegatePolicy selects how a registered delegate interacts with the
// recipient's own withdrawal rights.
type DelegatePolicy string

const (
	// DelegateAdditive grants the delegate withdrawal capability alongside
	// the recipient. This is the default.
	DelegateAdditive DelegatePolicy = "delegate_additive"
	// DelegateExclusive makes a registered delegate the only accepted
	// withdrawal principal until revoked.
	DelegateExclusive DelegatePolicy = "delegate_exclusive"
)

// Valid reports whether the policy is a known value.
func (p DelegatePolicy) Valid() bool {
	return p == DelegateAdditive || p == DelegateExclusive
}

// Gate performs capability checks for engine operations.
type Gate struct {
	verifier Verifier
	policy   DelegatePolicy
}

// NewGate creates a gate using the given verifier and delegate policy.
// A zero policy defaults to DelegateAdditive.
func NewGate(verifier Verifier, policy DelegatePolicy) (*Gate, error) {
	if verifier == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "auth", "NewGate", "verifier required")
	}
	if policy == "" {
		policy = DelegateAdditive
	}
	if !policy.Valid() {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "auth", "NewGate", "unknown delegate policy")
	}
	return &Gate{verifier: verifier, policy: policy}, nil
}

// Policy returns the gate's delegate policy.
func (g *Gate) Policy() DelegatePolicy {
	return g.policy
}

// Require checks that the caller is one of the allowed principals and that
// its proof verifies. Returns ErrUnauthorized otherwise.
func (g *Gate) Require(ctx context.Context, caller Caller, allowed ...stream.Address) error {
	for _, principal := range allowed {
		if principal == "" || caller.Principal != principal {
			continue
		}
		if err := g.verifier.Verify(ctx, principal, caller.Proof); err != nil {
			return errors.WrapInvalid(errors.ErrUnauthorized, "auth", "Require", "verify proof")
		}
		return nil
	}
	return errors.WrapInvalid(errors.ErrUnauthorized, "auth", "Require", "principal not permitted")
}

// RequireWithdraw checks withdrawal capability: the recipient's signature,
// or, if a delegate is registered, the delegate's. Under DelegateExclusive a
// registered delegate displaces the recipient's own right.
func (g *Gate) RequireWithdraw(ctx context.Context, caller Caller, recipient stream.Address, delegate *stream.Address) error {
	if delegate == nil {
		return g.Require(ctx, caller, recipient)
	}
	if g.policy == DelegateExclusive {
		return g.Require(ctx, caller, *delegate)
	}
	return g.Require(ctx, caller, recipient, *delegate)
}
