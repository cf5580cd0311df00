package streamstore

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/natsclient"
	"github.com/Fundable-Protocol/stellar-client/pkg/retry"
	"github.com/Fundable-Protocol/stellar-client/stream"
)

// BucketName is the KV bucket holding all engine records.
const BucketName = "fundable_streams"

// kvBucket is the slice of natsclient.KVStore the store uses; tests
// substitute failing implementations.
type kvBucket interface {
	Get(ctx context.Context, key string) (*natsclient.KVEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string) error
}

// NATSStore persists records in a NATS JetStream KV bucket.
//
// Commit snapshots each key before mutating it and restores the snapshots
// if a later mutation fails, so a transaction never leaves the bucket
// partially applied. The engine serializes calls, so snapshots cannot race
// with concurrent commits.
type NATSStore struct {
	kv    kvBucket
	retry retry.Config
}

// NewNATSStore creates the KV bucket (idempotent) and returns a store over it.
func NewNATSStore(ctx context.Context, client *natsclient.Client) (*NATSStore, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "streamstore", "NewNATSStore", "nats client required")
	}

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketName,
		Description: "Fundable payment stream records",
		History:     5,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "streamstore", "NewNATSStore", "create KV bucket")
	}

	return &NATSStore{kv: client.NewKVStore(bucket), retry: retry.DefaultConfig()}, nil
}

func (n *NATSStore) get(ctx context.Context, key string, v any) (bool, error) {
	entry, err := n.kv.Get(ctx, key)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return false, nil
		}
		return false, errors.WrapTransient(err, "streamstore", "get", "get "+key)
	}
	if err := json.Unmarshal(entry.Value, v); err != nil {
		return false, errors.WrapFatal(err, "streamstore", "get", "unmarshal "+key)
	}
	return true, nil
}

// GetInstance implements Store.
func (n *NATSStore) GetInstance(ctx context.Context) (*Instance, error) {
	var inst Instance
	ok, err := n.get(ctx, keyInstance, &inst)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrNotInitialized
	}
	return &inst, nil
}

// GetStream implements Store.
func (n *NATSStore) GetStream(ctx context.Context, id stream.ID) (*stream.Stream, error) {
	var s stream.Stream
	ok, err := n.get(ctx, streamKey(id), &s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrStreamNotFound
	}
	return &s, nil
}

// GetMetrics implements Store.
func (n *NATSStore) GetMetrics(ctx context.Context, id stream.ID) (*stream.Metrics, error) {
	var sm stream.Metrics
	ok, err := n.get(ctx, metricsKey(id), &sm)
	if err != nil || !ok {
		return nil, err
	}
	return &sm, nil
}

// GetDelegate implements Store.
func (n *NATSStore) GetDelegate(ctx context.Context, id stream.ID) (*stream.Address, error) {
	var addr stream.Address
	ok, err := n.get(ctx, delegateKey(id), &addr)
	if err != nil || !ok {
		return nil, err
	}
	return &addr, nil
}

// GetCancelRequest implements Store.
func (n *NATSStore) GetCancelRequest(ctx context.Context, id stream.ID) (*stream.CancelRequest, error) {
	var cr stream.CancelRequest
	ok, err := n.get(ctx, cancelRequestKey(id), &cr)
	if err != nil || !ok {
		return nil, err
	}
	return &cr, nil
}

// GetProtocolMetrics implements Store.
func (n *NATSStore) GetProtocolMetrics(ctx context.Context) (*stream.ProtocolMetrics, error) {
	var pm stream.ProtocolMetrics
	if _, err := n.get(ctx, keyProtocolMetrics, &pm); err != nil {
		return nil, err
	}
	return &pm, nil
}

// snapshot records a key's state before a mutation touched it.
type snapshot struct {
	key     string
	existed bool
	prior   []byte
}

// Commit implements Store.
//
// Deletes and puts are idempotent and retried on transient failures.
// Creates are not retried: a retry after a lost ack would report a
// spurious conflict against its own first attempt. On failure,
// already-applied mutations are rolled back most-recent-first from
// their snapshots.
func (n *NATSStore) Commit(ctx context.Context, txn *Txn) error {
	if err := txn.Err(); err != nil {
		return err
	}

	var applied []snapshot
	for _, mut := range txn.mutations {
		snap, err := n.snapshot(ctx, mut)
		if err != nil {
			return n.rollback(ctx, applied, err)
		}

		switch {
		case mut.delete:
			err = retry.Do(ctx, n.retry, func() error {
				if err := n.kv.Delete(ctx, mut.key); err != nil {
					return errors.WrapTransient(err, "streamstore", "Commit", "delete "+mut.key)
				}
				return nil
			})
		case mut.create:
			if _, cerr := n.kv.Create(ctx, mut.key, mut.value); cerr != nil {
				if natsclient.IsKVConflictError(cerr) {
					err = errors.WrapInvalid(errors.ErrKeyExists, "streamstore", "Commit", "create "+mut.key)
				} else {
					err = errors.WrapTransient(cerr, "streamstore", "Commit", "create "+mut.key)
				}
			}
		default:
			err = retry.Do(ctx, n.retry, func() error {
				if _, err := n.kv.Put(ctx, mut.key, mut.value); err != nil {
					return errors.WrapTransient(err, "streamstore", "Commit", "put "+mut.key)
				}
				return nil
			})
		}
		if err != nil {
			return n.rollback(ctx, applied, err)
		}
		applied = append(applied, snap)
	}
	return nil
}

// snapshot captures the prior state of a mutation's key. Creates skip the
// read: their rollback is always a delete.
func (n *NATSStore) snapshot(ctx context.Context, mut mutation) (snapshot, error) {
	snap := snapshot{key: mut.key}
	if mut.create {
		return snap, nil
	}
	entry, err := n.kv.Get(ctx, mut.key)
	switch {
	case err == nil:
		snap.existed = true
		snap.prior = entry.Value
	case natsclient.IsKVNotFoundError(err):
	default:
		return snap, errors.WrapTransient(err, "streamstore", "Commit", "snapshot "+mut.key)
	}
	return snap, nil
}

// rollback restores applied snapshots most-recent-first. A restore failure
// is joined onto the commit error; the caller cannot fix it, but it must
// not be silent.
func (n *NATSStore) rollback(ctx context.Context, applied []snapshot, cause error) error {
	for i := len(applied) - 1; i >= 0; i-- {
		snap := applied[i]
		err := retry.Do(ctx, n.retry, func() error {
			if !snap.existed {
				if derr := n.kv.Delete(ctx, snap.key); derr != nil {
					return errors.WrapTransient(derr, "streamstore", "Commit", "roll back "+snap.key)
				}
				return nil
			}
			if _, perr := n.kv.Put(ctx, snap.key, snap.prior); perr != nil {
				return errors.WrapTransient(perr, "streamstore", "Commit", "roll back "+snap.key)
			}
			return nil
		})
		if err != nil {
			return stderrors.Join(cause, err)
		}
	}
	return cause
}

// ExtendRetention implements Store. The bucket does not expire keys, so the
// explicit retention bump is a no-op here.
func (n *NATSStore) ExtendRetention(_ context.Context, _ stream.ID) error {
	return nil
}
