package streamstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/natsclient"
	"github.com/Fundable-Protocol/stellar-client/stream"
)

func TestNATSStore_Roundtrip(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set INTEGRATION_TESTS=1 to run)")
	}

	ctx := context.Background()
	tc := natsclient.NewTestClient(t)

	store, err := NewNATSStore(ctx, tc.Client)
	require.NoError(t, err)

	_, err = store.GetInstance(ctx)
	assert.ErrorIs(t, err, errors.ErrNotInitialized)

	s := testStream(1)
	txn := NewTxn()
	txn.CreateInstance(&Instance{Admin: "admin", FeeCollector: "collector", StreamCount: 1})
	txn.CreateStream(s)
	txn.PutProtocolMetrics(&stream.ProtocolMetrics{TotalStreamsCreated: 1, TotalActiveStreams: 1})
	require.NoError(t, store.Commit(ctx, txn))

	got, err := store.GetStream(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	// Init-once: a second instance create conflicts.
	txn = NewTxn()
	txn.CreateInstance(&Instance{Admin: "other"})
	assert.ErrorIs(t, store.Commit(ctx, txn), errors.ErrKeyExists)

	// Delegate lifecycle, including delete of a missing key.
	txn = NewTxn()
	txn.PutDelegate(1, "dave")
	require.NoError(t, store.Commit(ctx, txn))

	d, err := store.GetDelegate(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, stream.Address("dave"), *d)

	txn = NewTxn()
	txn.DeleteDelegate(1)
	txn.DeleteDelegate(1)
	require.NoError(t, store.Commit(ctx, txn))

	d, err = store.GetDelegate(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, d)

	require.NoError(t, store.ExtendRetention(ctx, 1))
}
