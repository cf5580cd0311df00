package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/stream"
)

// AcceptAll is a Verifier for embedded use, where the host application has
// already authenticated the caller before handing it to the engine.
type AcceptAll struct{}

// Verify always succeeds.
func (AcceptAll) Verify(_ context.Context, _ stream.Address, _ []byte) error {
	return nil
}

// SharedSecretVerifier verifies proofs as hex-encoded HMAC-SHA256 tags over
// the principal address, keyed by a per-principal shared secret. It backs the
// HTTP surface; replay protection is delegated to the transport.
type SharedSecretVerifier struct {
	mu      sync.RWMutex
	secrets map[stream.Address][]byte
}

// NewSharedSecretVerifier creates a verifier with the given per-principal
// secrets. The map is copied.
func NewSharedSecretVerifier(secrets map[stream.Address][]byte) *SharedSecretVerifier {
	copied := make(map[stream.Address][]byte, len(secrets))
	for principal, secret := range secrets {
		copied[principal] = append([]byte(nil), secret...)
	}
	return &SharedSecretVerifier{secrets: copied}
}

// SetSecret registers or replaces the secret for a principal.
func (v *SharedSecretVerifier) SetSecret(principal stream.Address, secret []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secrets[principal] = append([]byte(nil), secret...)
}

// Sign produces the proof a caller presents for a principal. Exposed for
// clients and tests.
func (v *SharedSecretVerifier) Sign(principal stream.Address) ([]byte, bool) {
	v.mu.RLock()
	secret, ok := v.secrets[principal]
	v.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return []byte(hex.EncodeToString(tag(secret, principal))), true
}

// Verify implements Verifier.
func (v *SharedSecretVerifier) Verify(_ context.Context, principal stream.Address, proof []byte) error {
	v.mu.RLock()
	secret, ok := v.secrets[principal]
	v.mu.RUnlock()
	if !ok {
		return errors.WrapInvalid(errors.ErrUnauthorized, "auth", "Verify", "unknown principal")
	}

	decoded, err := hex.DecodeString(string(proof))
	if err != nil {
		return errors.WrapInvalid(errors.ErrUnauthorized, "auth", "Verify", "decode proof")
	}
	if !hmac.Equal(decoded, tag(secret, principal)) {
		return errors.WrapInvalid(errors.ErrUnauthorized, "auth", "Verify", "proof mismatch")
	}
	return nil
}

func tag(secret []byte, principal stream.Address) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(principal))
	return mac.Sum(nil)
}
