package streamstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/stream"
)

// MemoryStore is an in-memory Store for tests and embedded deployments.
// Commit is atomic: either every staged mutation applies or none do.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// retentionBumps counts ExtendRetention calls per stream, for tests.
	retentionBumps map[stream.ID]int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:           make(map[string][]byte),
		retentionBumps: make(map[stream.ID]int),
	}
}

func (m *MemoryStore) get(key string, v any) (bool, error) {
	m.mu.RLock()
	data, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.WrapFatal(err, "streamstore", "get", "unmarshal "+key)
	}
	return true, nil
}

// GetInstance implements Store.
func (m *MemoryStore) GetInstance(_ context.Context) (*Instance, error) {
	var inst Instance
	ok, err := m.get(keyInstance, &inst)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrNotInitialized
	}
	return &inst, nil
}

// GetStream implements Store.
func (m *MemoryStore) GetStream(_ context.Context, id stream.ID) (*stream.Stream, error) {
	var s stream.Stream
	ok, err := m.get(streamKey(id), &s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrStreamNotFound
	}
	return &s, nil
}

// GetMetrics implements Store.
func (m *MemoryStore) GetMetrics(_ context.Context, id stream.ID) (*stream.Metrics, error) {
	var sm stream.Metrics
	ok, err := m.get(metricsKey(id), &sm)
	if err != nil || !ok {
		return nil, err
	}
	return &sm, nil
}

// GetDelegate implements Store.
func (m *MemoryStore) GetDelegate(_ context.Context, id stream.ID) (*stream.Address, error) {
	var addr stream.Address
	ok, err := m.get(delegateKey(id), &addr)
	if err != nil || !ok {
		return nil, err
	}
	return &addr, nil
}

// GetCancelRequest implements Store.
func (m *MemoryStore) GetCancelRequest(_ context.Context, id stream.ID) (*stream.CancelRequest, error) {
	var cr stream.CancelRequest
	ok, err := m.get(cancelRequestKey(id), &cr)
	if err != nil || !ok {
		return nil, err
	}
	return &cr, nil
}

// GetProtocolMetrics implements Store.
func (m *MemoryStore) GetProtocolMetrics(_ context.Context) (*stream.ProtocolMetrics, error) {
	var pm stream.ProtocolMetrics
	if _, err := m.get(keyProtocolMetrics, &pm); err != nil {
		return nil, err
	}
	return &pm, nil
}

// Commit implements Store. Create conflicts are detected before any write
// lands, so a failed commit leaves the store untouched.
func (m *MemoryStore) Commit(_ context.Context, txn *Txn) error {
	if err := txn.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mut := range txn.mutations {
		if mut.create {
			if _, exists := m.data[mut.key]; exists {
				return errors.WrapInvalid(errors.ErrKeyExists, "streamstore", "Commit", "create "+mut.key)
			}
		}
	}

	for _, mut := range txn.mutations {
		if mut.delete {
			delete(m.data, mut.key)
			continue
		}
		m.data[mut.key] = mut.value
	}
	return nil
}

// ExtendRetention implements Store. Memory never expires; the call only
// records that a bump was requested.
func (m *MemoryStore) ExtendRetention(_ context.Context, id stream.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retentionBumps[id]++
	return nil
}

// RetentionBumps returns how many times retention was extended for a stream.
func (m *MemoryStore) RetentionBumps(id stream.ID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.retentionBumps[id]
}
