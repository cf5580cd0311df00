// Package token defines the token-transfer collaborator consumed by the
// streaming engine, plus an in-memory ledger implementation used for tests
// and embedded deployments.
package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/stream"
)

// Service moves tokens between addresses. Transfer either fully succeeds or
// fails atomically; the engine relies on that to keep escrow conservation.
type Service interface {
	Transfer(ctx context.Context, token, from, to stream.Address, amount int64) error
}

// Ledger is an in-memory token ledger with per-token balance accounting.
// All operations are safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	balances map[stream.Address]map[stream.Address]int64 // token -> holder -> balance
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[stream.Address]map[stream.Address]int64)}
}

// Mint credits an address with freshly created tokens.
func (l *Ledger) Mint(token, to stream.Address, amount int64) {
	if amount <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holders(token)[to] += amount
}

// Balance returns the holder's balance for a token.
func (l *Ledger) Balance(token, holder stream.Address) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holders(token)[holder]
}

// Transfer implements Service. It debits from and credits to under one lock,
// so the transfer is all-or-nothing.
func (l *Ledger) Transfer(_ context.Context, token, from, to stream.Address, amount int64) error {
	if amount <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidAmount, "token", "Transfer", "validate amount")
	}
	if from == "" || to == "" {
		return errors.WrapInvalid(errors.ErrTransferFailed, "token", "Transfer", "validate addresses")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	holders := l.holders(token)
	if holders[from] < amount {
		return errors.WrapTransient(
			fmt.Errorf("%w: %s holds %d of token %s, needs %d",
				errors.ErrTransferFailed, from, holders[from], token, amount),
			"token", "Transfer", "insufficient balance")
	}

	holders[from] -= amount
	holders[to] += amount
	return nil
}

func (l *Ledger) holders(token stream.Address) map[stream.Address]int64 {
	h, ok := l.balances[token]
	if !ok {
		h = make(map[stream.Address]int64)
		l.balances[token] = h
	}
	return h
}
