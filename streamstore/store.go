// Package streamstore provides persistence for streams and their associated
// records: per-stream metrics, delegate relations, cancel requests, the
// protocol-wide metrics, and the instance configuration.
//
// All engine mutations are staged in a Txn and applied through Commit, so a
// lifecycle transition touching several records lands as one unit. Reads for
// records with a natural default (metrics, delegate, cancel request) return
// nil rather than erroring when absent.
package streamstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/stream"
)

// Instance is the init-once configuration and counters of a deployed engine
// instance. Admin-gated setters are the only mutation path after Initialize.
type Instance struct {
	Admin        stream.Address `json:"admin"`
	FeeCollector stream.Address `json:"fee_collector"`
	FeeRateBps   stream.FeeRate `json:"fee_rate_bps"`
	StreamCount  uint64         `json:"stream_count"`
}

// Store is the keyed persistence collaborator consumed by the engine.
type Store interface {
	// GetInstance returns the instance record, or ErrNotInitialized.
	GetInstance(ctx context.Context) (*Instance, error)
	// GetStream returns the stream, or ErrStreamNotFound.
	GetStream(ctx context.Context, id stream.ID) (*stream.Stream, error)
	// GetMetrics returns the stream's metrics, or nil when absent.
	GetMetrics(ctx context.Context, id stream.ID) (*stream.Metrics, error)
	// GetDelegate returns the stream's delegate, or nil when none is set.
	GetDelegate(ctx context.Context, id stream.ID) (*stream.Address, error)
	// GetCancelRequest returns the pending cancel request, or nil when none.
	GetCancelRequest(ctx context.Context, id stream.ID) (*stream.CancelRequest, error)
	// GetProtocolMetrics returns the protocol metrics; zero value when absent.
	GetProtocolMetrics(ctx context.Context) (*stream.ProtocolMetrics, error)

	// Commit applies all staged mutations. A create of an existing key fails
	// with ErrKeyExists and nothing before it is kept visible to the engine
	// (the engine serializes calls and compensates externally on failure).
	Commit(ctx context.Context, txn *Txn) error

	// ExtendRetention bumps the retention of the given stream's records.
	// A no-op for backends with non-expiring storage.
	ExtendRetention(ctx context.Context, id stream.ID) error
}

// Record keys. Streams and their satellite records share the id suffix so a
// retention bump can address them together.
const (
	keyInstance        = "instance"
	keyProtocolMetrics = "protocol_metrics"
)

func streamKey(id stream.ID) string        { return fmt.Sprintf("stream.%d", id) }
func metricsKey(id stream.ID) string       { return fmt.Sprintf("metrics.%d", id) }
func delegateKey(id stream.ID) string      { return fmt.Sprintf("delegate.%d", id) }
func cancelRequestKey(id stream.ID) string { return fmt.Sprintf("cancelreq.%d", id) }

// mutation is one staged write. create distinguishes create-only semantics
// from plain puts.
type mutation struct {
	key    string
	value  []byte
	create bool
	delete bool
}

// Txn is an ordered batch of staged mutations.
type Txn struct {
	mutations []mutation
	err       error
}

// NewTxn creates an empty transaction.
func NewTxn() *Txn {
	return &Txn{}
}

// Err returns the first staging error, if any. Commit refuses a failed Txn.
func (t *Txn) Err() error {
	return t.err
}

// Empty reports whether nothing has been staged.
func (t *Txn) Empty() bool {
	return len(t.mutations) == 0
}

func (t *Txn) stage(key string, v any, create bool) {
	if t.err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.err = errors.WrapFatal(err, "streamstore", "Txn", "marshal "+key)
		return
	}
	t.mutations = append(t.mutations, mutation{key: key, value: data, create: create})
}

func (t *Txn) stageDelete(key string) {
	if t.err != nil {
		return
	}
	t.mutations = append(t.mutations, mutation{key: key, delete: true})
}

// CreateInstance stages the init-once instance record; commit fails with
// ErrKeyExists if one already exists.
func (t *Txn) CreateInstance(inst *Instance) { t.stage(keyInstance, inst, true) }

// PutInstance stages an instance update.
func (t *Txn) PutInstance(inst *Instance) { t.stage(keyInstance, inst, false) }

// CreateStream stages a new stream record.
func (t *Txn) CreateStream(s *stream.Stream) { t.stage(streamKey(s.ID), s, true) }

// PutStream stages a stream update.
func (t *Txn) PutStream(s *stream.Stream) { t.stage(streamKey(s.ID), s, false) }

// PutMetrics stages a per-stream metrics update.
func (t *Txn) PutMetrics(id stream.ID, m *stream.Metrics) { t.stage(metricsKey(id), m, false) }

// PutDelegate stages the delegate relation for a stream.
func (t *Txn) PutDelegate(id stream.ID, delegate stream.Address) {
	t.stage(delegateKey(id), delegate, false)
}

// DeleteDelegate stages removal of the delegate relation.
func (t *Txn) DeleteDelegate(id stream.ID) { t.stageDelete(delegateKey(id)) }

// CreateCancelRequest stages a pending cancel request; commit fails with
// ErrKeyExists if one is already live.
func (t *Txn) CreateCancelRequest(cr *stream.CancelRequest) {
	t.stage(cancelRequestKey(cr.StreamID), cr, true)
}

// DeleteCancelRequest stages removal of the pending cancel request.
func (t *Txn) DeleteCancelRequest(id stream.ID) { t.stageDelete(cancelRequestKey(id)) }

// PutProtocolMetrics stages the protocol-wide metrics record.
func (t *Txn) PutProtocolMetrics(pm *stream.ProtocolMetrics) {
	t.stage(keyProtocolMetrics, pm, false)
}
