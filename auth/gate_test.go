package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/stream"
)

func newTestGate(t *testing.T, policy DelegatePolicy) *Gate {
	t.Helper()
	gate, err := NewGate(AcceptAll{}, policy)
	require.NoError(t, err)
	return gate
}

func TestNewGate(t *testing.T) {
	_, err := NewGate(nil, DelegateAdditive)
	assert.Error(t, err)

	_, err = NewGate(AcceptAll{}, DelegatePolicy("whatever"))
	assert.Error(t, err)

	gate, err := NewGate(AcceptAll{}, "")
	require.NoError(t, err)
	assert.Equal(t, DelegateAdditive, gate.Policy())
}

func TestRequire(t *testing.T) {
	gate := newTestGate(t, DelegateAdditive)
	ctx := context.Background()

	tests := []struct {
		name    string
		caller  stream.Address
		allowed []stream.Address
		wantErr bool
	}{
		{"single match", "alice", []stream.Address{"alice"}, false},
		{"one of several", "bob", []stream.Address{"alice", "bob"}, false},
		{"not permitted", "mallory", []stream.Address{"alice", "bob"}, true},
		{"empty allowed set", "alice", nil, true},
		{"empty principal never matches", "", []stream.Address{""}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Require(ctx, Caller{Principal: tt.caller}, tt.allowed...)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrUnauthorized)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequireWithdraw_PolicyMatrix(t *testing.T) {
	ctx := context.Background()
	delegate := stream.Address("dave")

	tests := []struct {
		name     string
		policy   DelegatePolicy
		caller   stream.Address
		delegate *stream.Address
		wantErr  bool
	}{
		{"additive recipient no delegate", DelegateAdditive, "recipient", nil, false},
		{"additive recipient with delegate", DelegateAdditive, "recipient", &delegate, false},
		{"additive delegate", DelegateAdditive, "dave", &delegate, false},
		{"additive stranger", DelegateAdditive, "mallory", &delegate, true},
		{"exclusive recipient no delegate", DelegateExclusive, "recipient", nil, false},
		{"exclusive recipient displaced", DelegateExclusive, "recipient", &delegate, true},
		{"exclusive delegate", DelegateExclusive, "dave", &delegate, false},
		{"exclusive stranger", DelegateExclusive, "mallory", &delegate, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := newTestGate(t, tt.policy)
			err := gate.RequireWithdraw(ctx, Caller{Principal: tt.caller}, "recipient", tt.delegate)
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrUnauthorized)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSharedSecretVerifier(t *testing.T) {
	ctx := context.Background()
	v := NewSharedSecretVerifier(map[stream.Address][]byte{
		"alice": []byte("alice-secret"),
	})

	proof, ok := v.Sign("alice")
	require.True(t, ok)
	assert.NoError(t, v.Verify(ctx, "alice", proof))

	// Wrong principal for a valid proof.
	v.SetSecret("bob", []byte("bob-secret"))
	assert.Error(t, v.Verify(ctx, "bob", proof))

	// Unknown principal.
	assert.Error(t, v.Verify(ctx, "mallory", proof))

	// Garbage proof.
	assert.Error(t, v.Verify(ctx, "alice", []byte("not-hex!")))
	assert.Error(t, v.Verify(ctx, "alice", []byte("deadbeef")))

	_, ok = v.Sign("nobody")
	assert.False(t, ok)
}

func TestGateUsesVerifier(t *testing.T) {
	v := NewSharedSecretVerifier(map[stream.Address][]byte{
		"alice": []byte("alice-secret"),
	})
	gate, err := NewGate(v, DelegateAdditive)
	require.NoError(t, err)

	proof, _ := v.Sign("alice")
	assert.NoError(t, gate.Require(context.Background(), Caller{Principal: "alice", Proof: proof}, "alice"))

	err = gate.Require(context.Background(), Caller{Principal: "alice", Proof: []byte("bad")}, "alice")
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
}
