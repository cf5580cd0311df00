// Package distributor implements one-shot batch payouts: a sender splits an
// amount across many recipients in a single call, either equally or with
// explicit per-recipient weights. A flat basis-point fee goes to the fee
// address on top of the distributed amount. The distributor is independent
// of the streaming engine but shares its collaborators.
package distributor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Fundable-Protocol/stellar-client/auth"
	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/event"
	"github.com/Fundable-Protocol/stellar-client/pkg/timestamp"
	"github.com/Fundable-Protocol/stellar-client/stream"
	"github.com/Fundable-Protocol/stellar-client/token"
)

// maxFeeBps caps the distribution fee at 100%.
const maxFeeBps = 10_000

// Options configures a Distributor.
type Options struct {
	Store  Store
	Tokens token.Service
	Clock  timestamp.Clock
	Gate   *auth.Gate
	Sink   event.Sink
	Logger *slog.Logger
}

// Distributor performs batch payouts and keeps distribution statistics.
// Mutating operations are serialized.
type Distributor struct {
	mu sync.Mutex

	store  Store
	tokens token.Service
	clock  timestamp.Clock
	gate   *auth.Gate
	sink   event.Sink
	logger *slog.Logger
}

// New creates a distributor. Store, Tokens, Clock, and Gate are required.
func New(opts Options) (*Distributor, error) {
	if opts.Store == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "distributor", "New", "store required")
	}
	if opts.Tokens == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "distributor", "New", "token service required")
	}
	if opts.Clock == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "distributor", "New", "clock required")
	}
	if opts.Gate == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "distributor", "New", "auth gate required")
	}

	sink := opts.Sink
	if sink == nil {
		sink = event.NopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Distributor{
		store:  opts.Store,
		tokens: opts.Tokens,
		clock:  opts.Clock,
		gate:   opts.Gate,
		sink:   sink,
		logger: logger,
	}, nil
}

// Initialize writes the init-once distributor configuration.
func (d *Distributor) Initialize(ctx context.Context, caller auth.Caller, admin, feeAddress stream.Address, feeBps uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if admin == "" || feeAddress == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "distributor", "Initialize", "admin and fee address required")
	}
	if feeBps > maxFeeBps {
		return errors.WrapInvalid(errors.ErrFeeTooHigh, "distributor", "Initialize", "validate fee")
	}
	if err := d.gate.Require(ctx, caller, admin); err != nil {
		return err
	}

	err := d.store.CreateConfig(ctx, &Config{Admin: admin, FeeAddress: feeAddress, FeeBps: feeBps})
	if err != nil {
		if errors.Is(err, errors.ErrKeyExists) {
			return errors.WrapInvalid(errors.ErrAlreadyInitialized, "distributor", "Initialize", "create config")
		}
		return err
	}

	d.logger.Info("distributor initialized", "admin", admin, "fee_address", feeAddress, "fee_bps", feeBps)
	return nil
}

// SetProtocolFee updates the distribution fee rate. Admin only.
func (d *Distributor) SetProtocolFee(ctx context.Context, caller auth.Caller, feeBps uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg, err := d.store.GetConfig(ctx)
	if err != nil {
		return err
	}
	if err := d.gate.Require(ctx, caller, cfg.Admin); err != nil {
		return err
	}
	if feeBps > maxFeeBps {
		return errors.WrapInvalid(errors.ErrFeeTooHigh, "distributor", "SetProtocolFee", "validate fee")
	}

	cfg.FeeBps = feeBps
	return d.store.PutConfig(ctx, cfg)
}

// DistributeEqual splits total evenly across the recipients. The per-head
// amount is total/len truncated; a total too small to give every recipient
// at least one unit is rejected. The fee is charged on top of total.
func (d *Distributor) DistributeEqual(ctx context.Context, caller auth.Caller, sender, tokenAddr stream.Address, total int64, recipients []stream.Address) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	const op = "DistributeEqual"

	cfg, err := d.store.GetConfig(ctx)
	if err != nil {
		return err
	}
	if err := d.gate.Require(ctx, caller, sender); err != nil {
		return err
	}
	if len(recipients) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidRecipient, "distributor", op, "no recipients")
	}
	if total <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidAmount, "distributor", op, "validate total")
	}
	perRecipient := total / int64(len(recipients))
	if perRecipient == 0 {
		return errors.WrapInvalid(errors.ErrInvalidAmount, "distributor", op, "amount too small to distribute")
	}

	amounts := make([]int64, len(recipients))
	for i := range amounts {
		amounts[i] = perRecipient
	}
	// The truncation remainder stays with the sender; the fee and the
	// recorded stats are still based on the requested total.
	return d.distribute(ctx, op, cfg, sender, tokenAddr, total, recipients, amounts)
}

// DistributeWeighted sends each recipient its own amount. All amounts must
// be positive and the two slices must pair up. The fee is charged on the sum.
func (d *Distributor) DistributeWeighted(ctx context.Context, caller auth.Caller, sender, tokenAddr stream.Address, recipients []stream.Address, amounts []int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	const op = "DistributeWeighted"

	cfg, err := d.store.GetConfig(ctx)
	if err != nil {
		return err
	}
	if err := d.gate.Require(ctx, caller, sender); err != nil {
		return err
	}
	if len(recipients) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidRecipient, "distributor", op, "no recipients")
	}
	if len(recipients) != len(amounts) {
		return errors.WrapInvalid(errors.ErrInvalidAmount, "distributor", op, "recipients and amounts must pair up")
	}

	var total int64
	for _, a := range amounts {
		if a <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidAmount, "distributor", op, "all amounts must be positive")
		}
		total += a
	}
	return d.distribute(ctx, op, cfg, sender, tokenAddr, total, recipients, amounts)
}

func (d *Distributor) distribute(ctx context.Context, op string, cfg *Config, sender, tokenAddr stream.Address, total int64, recipients []stream.Address, amounts []int64) error {
	fee := (total * int64(cfg.FeeBps)) / 10_000

	// Transfers run fee-first so an underfunded sender aborts before any
	// recipient is paid. A mid-batch failure reverses the completed legs.
	var done []transfer
	fail := func(err error) error {
		for i := len(done) - 1; i >= 0; i-- {
			tr := done[i]
			if rerr := d.tokens.Transfer(ctx, tokenAddr, tr.to, sender, tr.amount); rerr != nil {
				d.logger.Error("failed to reverse distribution leg",
					"operation", op, "to", tr.to, "amount", tr.amount, "error", rerr)
			}
		}
		return errors.Wrap(err, "distributor", op, "token transfer")
	}

	if fee > 0 {
		if err := d.tokens.Transfer(ctx, tokenAddr, sender, cfg.FeeAddress, fee); err != nil {
			return fail(err)
		}
		done = append(done, transfer{to: cfg.FeeAddress, amount: fee})
	}
	for i, r := range recipients {
		if err := d.tokens.Transfer(ctx, tokenAddr, sender, r, amounts[i]); err != nil {
			return fail(err)
		}
		done = append(done, transfer{to: r, amount: amounts[i]})
	}

	now := d.clock.Now()
	if err := d.recordStats(ctx, sender, tokenAddr, total, uint32(len(recipients)), now); err != nil {
		d.logger.Error("distribution succeeded but stats update failed", "operation", op, "error", err)
	}

	d.sink.Emit(ctx, event.New(event.TypeDistribution, now, map[string]any{
		"sender":     sender,
		"token":      tokenAddr,
		"amount":     total,
		"fee":        fee,
		"recipients": len(recipients),
	}))
	d.logger.Info("distribution complete",
		"sender", sender, "token", tokenAddr, "amount", total, "fee", fee, "recipients", len(recipients))
	return nil
}

type transfer struct {
	to     stream.Address
	amount int64
}

func (d *Distributor) recordStats(ctx context.Context, sender, tokenAddr stream.Address, total int64, recipientCount uint32, now int64) error {
	global, err := d.store.GetGlobalStats(ctx)
	if err != nil {
		return err
	}
	global.TotalDistributions++
	global.TotalAmount += total
	if err := d.store.PutGlobalStats(ctx, global); err != nil {
		return err
	}

	ts, err := d.store.GetTokenStats(ctx, tokenAddr)
	if err != nil {
		return err
	}
	if ts == nil {
		ts = &TokenStats{}
	}
	ts.TotalAmount += total
	ts.DistributionCount++
	ts.LastTime = now
	if err := d.store.PutTokenStats(ctx, tokenAddr, ts); err != nil {
		return err
	}

	us, err := d.store.GetUserStats(ctx, sender)
	if err != nil {
		return err
	}
	if us == nil {
		us = &UserStats{}
	}
	us.DistributionsInitiated++
	us.TotalAmount += total
	if err := d.store.PutUserStats(ctx, sender, us); err != nil {
		return err
	}

	return d.store.AppendHistory(ctx, &Record{
		Sender:          sender,
		Token:           tokenAddr,
		Amount:          total,
		RecipientsCount: recipientCount,
		Timestamp:       now,
	})
}

// Admin returns the configured admin address.
func (d *Distributor) Admin(ctx context.Context) (stream.Address, error) {
	cfg, err := d.store.GetConfig(ctx)
	if err != nil {
		return "", err
	}
	return cfg.Admin, nil
}

// TotalDistributions returns the number of completed distributions.
func (d *Distributor) TotalDistributions(ctx context.Context) (uint64, error) {
	g, err := d.store.GetGlobalStats(ctx)
	if err != nil {
		return 0, err
	}
	return g.TotalDistributions, nil
}

// TotalDistributedAmount returns the cumulative distributed amount.
func (d *Distributor) TotalDistributedAmount(ctx context.Context) (int64, error) {
	g, err := d.store.GetGlobalStats(ctx)
	if err != nil {
		return 0, err
	}
	return g.TotalAmount, nil
}

// TokenStats returns per-token distribution stats, or nil when the token has
// never been distributed.
func (d *Distributor) TokenStats(ctx context.Context, tokenAddr stream.Address) (*TokenStats, error) {
	return d.store.GetTokenStats(ctx, tokenAddr)
}

// UserStats returns per-sender distribution stats, or nil for an unknown
// sender.
func (d *Distributor) UserStats(ctx context.Context, user stream.Address) (*UserStats, error) {
	return d.store.GetUserStats(ctx, user)
}

// History returns up to limit records starting at the given sequence.
func (d *Distributor) History(ctx context.Context, start, limit uint64) ([]Record, error) {
	return d.store.History(ctx, start, limit)
}
