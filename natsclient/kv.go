package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Fundable-Protocol/stellar-client/errors"
)

// KV sentinel errors
var (
	// ErrKVKeyNotFound indicates the key does not exist in the bucket
	ErrKVKeyNotFound = fmt.Errorf("kv: %w", errors.ErrKeyNotFound)
	// ErrKVKeyExists indicates a Create hit an existing key
	ErrKVKeyExists = fmt.Errorf("kv: %w", errors.ErrKeyExists)
)

// IsKVNotFoundError reports whether err is a key-not-found condition,
// either ours or the underlying JetStream error.
func IsKVNotFoundError(err error) bool {
	return stderrors.Is(err, ErrKVKeyNotFound) ||
		stderrors.Is(err, jetstream.ErrKeyNotFound) ||
		stderrors.Is(err, jetstream.ErrKeyDeleted)
}

// IsKVConflictError reports whether err is a key-exists/wrong-revision condition.
func IsKVConflictError(err error) bool {
	return stderrors.Is(err, ErrKVKeyExists) ||
		stderrors.Is(err, jetstream.ErrKeyExists)
}

// KVEntry wraps a KV entry with its revision
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// KVOptions configures KV operations behavior
type KVOptions struct {
	Timeout time.Duration // Per-operation timeout
}

// DefaultKVOptions returns sensible defaults
func DefaultKVOptions() KVOptions {
	return KVOptions{Timeout: 5 * time.Second}
}

// KVStore provides high-level KV operations over a bucket
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
}

// NewKVStore creates a new KV store with the given bucket
func (c *Client) NewKVStore(bucket jetstream.KeyValue, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &KVStore{bucket: bucket, options: options}
}

// applyTimeout applies the configured timeout to the context if set
func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get retrieves a value with its revision
func (kv *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(ctx, key)
	if err != nil {
		if IsKVNotFoundError(err) {
			return nil, ErrKVKeyNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}

	return &KVEntry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

// Put creates or updates a key (last writer wins)
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("kv put %s: %w", key, err)
	}
	return rev, nil
}

// Create only creates if the key doesn't exist
func (kv *KVStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	rev, err := kv.bucket.Create(ctx, key, value)
	if err != nil {
		if IsKVConflictError(err) {
			return 0, ErrKVKeyExists
		}
		return 0, fmt.Errorf("kv create %s: %w", key, err)
	}
	return rev, nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	if err := kv.bucket.Delete(ctx, key); err != nil && !IsKVNotFoundError(err) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// Has reports whether the key exists
func (kv *KVStore) Has(ctx context.Context, key string) (bool, error) {
	_, err := kv.Get(ctx, key)
	if err != nil {
		if IsKVNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Keys lists all keys in the bucket. An empty bucket yields an empty slice.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	keys, err := kv.bucket.Keys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv keys: %w", err)
	}
	return keys, nil
}
