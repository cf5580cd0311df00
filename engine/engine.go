// Package engine implements the stream lifecycle controller: it orchestrates
// create/deposit/withdraw/pause/resume/cancel, delegation, and the
// consensual cancellation protocol over the store, token service, clock,
// authorization gate, and event sink.
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Fundable-Protocol/stellar-client/auth"
	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/event"
	"github.com/Fundable-Protocol/stellar-client/metric"
	"github.com/Fundable-Protocol/stellar-client/pkg/timestamp"
	"github.com/Fundable-Protocol/stellar-client/stream"
	"github.com/Fundable-Protocol/stellar-client/streamstore"
	"github.com/Fundable-Protocol/stellar-client/token"
)

// Options configures an Engine.
type Options struct {
	Store  streamstore.Store
	Tokens token.Service
	Clock  timestamp.Clock
	Gate   *auth.Gate
	Sink   event.Sink
	// Escrow is the address holding escrowed stream balances.
	Escrow stream.Address
	// Metrics is the optional Prometheus mirror.
	Metrics *metric.Metrics
	Logger  *slog.Logger
}

// Engine is the stream lifecycle controller. Mutating operations are
// serialized: each runs to completion as one atomic unit, so two operations
// on the same stream never interleave partial state. Reads never mutate
// stream records and may be issued freely.
type Engine struct {
	mu sync.Mutex

	store   streamstore.Store
	tokens  token.Service
	clock   timestamp.Clock
	gate    *auth.Gate
	sink    event.Sink
	escrow  stream.Address
	metrics *metric.Metrics
	logger  *slog.Logger
}

// New creates an engine from options. Store, Tokens, Clock, Gate, and Escrow
// are required; Sink defaults to a no-op, Logger to slog.Default.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "engine", "New", "store required")
	}
	if opts.Tokens == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "engine", "New", "token service required")
	}
	if opts.Clock == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "engine", "New", "clock required")
	}
	if opts.Gate == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "engine", "New", "auth gate required")
	}
	if opts.Escrow == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "engine", "New", "escrow address required")
	}

	sink := opts.Sink
	if sink == nil {
		sink = event.NopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		store:   opts.Store,
		tokens:  opts.Tokens,
		clock:   opts.Clock,
		gate:    opts.Gate,
		sink:    sink,
		escrow:  opts.Escrow,
		metrics: opts.Metrics,
		logger:  logger,
	}, nil
}

// Initialize writes the init-once instance record. Fails with
// ErrAlreadyInitialized on any subsequent call.
func (e *Engine) Initialize(ctx context.Context, caller auth.Caller, admin, feeCollector stream.Address, feeRate stream.FeeRate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if admin == "" || feeCollector == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "engine", "Initialize", "admin and fee collector required")
	}
	if !feeRate.Valid() {
		return errors.WrapInvalid(errors.ErrFeeTooHigh, "engine", "Initialize", "validate fee rate")
	}
	if err := e.gate.Require(ctx, caller, admin); err != nil {
		return err
	}

	txn := streamstore.NewTxn()
	txn.CreateInstance(&streamstore.Instance{
		Admin:        admin,
		FeeCollector: feeCollector,
		FeeRateBps:   feeRate,
	})
	txn.PutProtocolMetrics(&stream.ProtocolMetrics{})

	if err := e.store.Commit(ctx, txn); err != nil {
		if errors.Is(err, errors.ErrKeyExists) {
			return errors.WrapInvalid(errors.ErrAlreadyInitialized, "engine", "Initialize", "create instance")
		}
		return err
	}

	e.logger.Info("protocol initialized",
		"admin", admin, "fee_collector", feeCollector, "fee_rate_bps", feeRate)
	return nil
}

// SetProtocolFeeRate updates the withdrawal fee rate. Admin only.
func (e *Engine) SetProtocolFeeRate(ctx context.Context, caller auth.Caller, rate stream.FeeRate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, err := e.instance(ctx)
	if err != nil {
		return err
	}
	if err := e.gate.Require(ctx, caller, inst.Admin); err != nil {
		return err
	}
	if !rate.Valid() {
		return errors.WrapInvalid(errors.ErrFeeTooHigh, "engine", "SetProtocolFeeRate", "validate fee rate")
	}

	inst.FeeRateBps = rate
	txn := streamstore.NewTxn()
	txn.PutInstance(inst)
	if err := e.store.Commit(ctx, txn); err != nil {
		return err
	}

	e.logger.Info("protocol fee rate updated", "fee_rate_bps", rate)
	return nil
}

// SetFeeCollector updates the fee collector address. Admin only.
func (e *Engine) SetFeeCollector(ctx context.Context, caller auth.Caller, collector stream.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, err := e.instance(ctx)
	if err != nil {
		return err
	}
	if err := e.gate.Require(ctx, caller, inst.Admin); err != nil {
		return err
	}
	if collector == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "engine", "SetFeeCollector", "collector required")
	}

	inst.FeeCollector = collector
	txn := streamstore.NewTxn()
	txn.PutInstance(inst)
	if err := e.store.Commit(ctx, txn); err != nil {
		return err
	}

	e.logger.Info("fee collector updated", "fee_collector", collector)
	return nil
}

// GetProtocolFeeRate returns the current fee rate in basis points.
func (e *Engine) GetProtocolFeeRate(ctx context.Context) (stream.FeeRate, error) {
	inst, err := e.instance(ctx)
	if err != nil {
		return 0, err
	}
	return inst.FeeRateBps, nil
}

// GetFeeCollector returns the current fee collector address.
func (e *Engine) GetFeeCollector(ctx context.Context) (stream.Address, error) {
	inst, err := e.instance(ctx)
	if err != nil {
		return "", err
	}
	return inst.FeeCollector, nil
}

// GetStream returns the stream and bumps its retention.
func (e *Engine) GetStream(ctx context.Context, id stream.ID) (*stream.Stream, error) {
	s, err := e.store.GetStream(ctx, id)
	if err != nil {
		return nil, err
	}
	e.bumpRetention(ctx, id)
	return s, nil
}

// WithdrawableAmount returns the amount withdrawable from the stream right
// now. Non-Active streams yield 0 rather than an error.
func (e *Engine) WithdrawableAmount(ctx context.Context, id stream.ID) (int64, error) {
	s, err := e.store.GetStream(ctx, id)
	if err != nil {
		return 0, err
	}
	return stream.Withdrawable(s, e.clock.Now()), nil
}

// GetStreamMetrics returns the stream's activity metrics; a stream that has
// no metrics record yet yields zero-value metrics.
func (e *Engine) GetStreamMetrics(ctx context.Context, id stream.ID) (*stream.Metrics, error) {
	if _, err := e.store.GetStream(ctx, id); err != nil {
		return nil, err
	}
	m, err := e.store.GetMetrics(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = &stream.Metrics{}
	}
	return m, nil
}

// GetProtocolMetrics returns the protocol-wide counters.
func (e *Engine) GetProtocolMetrics(ctx context.Context) (*stream.ProtocolMetrics, error) {
	return e.store.GetProtocolMetrics(ctx)
}

// GetDelegate returns the stream's delegate, or nil when none is set.
func (e *Engine) GetDelegate(ctx context.Context, id stream.ID) (*stream.Address, error) {
	if _, err := e.store.GetStream(ctx, id); err != nil {
		return nil, err
	}
	return e.store.GetDelegate(ctx, id)
}

// GetCancelRequest returns the pending cancel request, or nil when none.
func (e *Engine) GetCancelRequest(ctx context.Context, id stream.ID) (*stream.CancelRequest, error) {
	if _, err := e.store.GetStream(ctx, id); err != nil {
		return nil, err
	}
	return e.store.GetCancelRequest(ctx, id)
}

func (e *Engine) instance(ctx context.Context) (*streamstore.Instance, error) {
	return e.store.GetInstance(ctx)
}

// loadMetrics returns the stream's metrics record, starting a fresh one when
// absent.
func (e *Engine) loadMetrics(ctx context.Context, id stream.ID) (*stream.Metrics, error) {
	m, err := e.store.GetMetrics(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = &stream.Metrics{}
	}
	return m, nil
}

// transferOp is one pending token movement executed at commit time.
type transferOp struct {
	token  stream.Address
	from   stream.Address
	to     stream.Address
	amount int64
}

// commit executes the pending transfers and then the storage transaction.
// If a transfer fails nothing has been persisted; if the storage commit
// fails the executed transfers are reversed so the call aborts entirely.
func (e *Engine) commit(ctx context.Context, op string, txn *streamstore.Txn, transfers []transferOp) error {
	done := make([]transferOp, 0, len(transfers))
	for _, tr := range transfers {
		if tr.amount == 0 {
			continue
		}
		if err := e.tokens.Transfer(ctx, tr.token, tr.from, tr.to, tr.amount); err != nil {
			e.reverse(ctx, op, done)
			return errors.Wrap(err, "engine", op, "token transfer")
		}
		done = append(done, tr)
	}

	if err := e.store.Commit(ctx, txn); err != nil {
		e.reverse(ctx, op, done)
		return errors.Wrap(err, "engine", op, "commit")
	}
	return nil
}

// reverse undoes already-executed transfers of an aborted call, most recent
// first. A reversal failure leaves funds parked in their current account and
// is surfaced loudly in the log; stream records are untouched because
// nothing was persisted.
func (e *Engine) reverse(ctx context.Context, op string, done []transferOp) {
	for i := len(done) - 1; i >= 0; i-- {
		tr := done[i]
		if err := e.tokens.Transfer(ctx, tr.token, tr.to, tr.from, tr.amount); err != nil {
			e.logger.Error("failed to reverse transfer during rollback",
				"operation", op, "token", tr.token, "from", tr.to, "to", tr.from,
				"amount", tr.amount, "error", err)
		}
	}
}

func (e *Engine) emit(ctx context.Context, t event.Type, data map[string]any) {
	e.sink.Emit(ctx, event.New(t, e.clock.Now(), data))
}

// bumpRetention extends the retention of a stream's records, logging rather
// than failing the already-committed operation.
func (e *Engine) bumpRetention(ctx context.Context, id stream.ID) {
	if err := e.store.ExtendRetention(ctx, id); err != nil {
		e.logger.Warn("retention bump failed", "stream_id", id, "error", err)
	}
}

func (e *Engine) recordFailure(op string) {
	if e.metrics != nil {
		e.metrics.OperationFails.WithLabelValues(op).Inc()
	}
}
