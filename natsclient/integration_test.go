package natsclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultWait = 2 * time.Second

func skipUnlessIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set INTEGRATION_TESTS=1 to run)")
	}
}

func TestKVStore_Roundtrip(t *testing.T) {
	skipUnlessIntegration(t)

	tc := NewTestClient(t)
	ctx := context.Background()

	bucket, err := tc.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket: "natsclient_test",
	})
	require.NoError(t, err)

	kv := tc.Client.NewKVStore(bucket)

	// Missing key
	_, err = kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)

	ok, err := kv.Has(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	// Create, then conflict on re-create
	_, err = kv.Create(ctx, "k1", []byte("v1"))
	require.NoError(t, err)
	_, err = kv.Create(ctx, "k1", []byte("v2"))
	assert.ErrorIs(t, err, ErrKVKeyExists)

	entry, err := kv.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), entry.Value)

	// Put overwrites
	_, err = kv.Put(ctx, "k1", []byte("v3"))
	require.NoError(t, err)
	entry, err = kv.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v3"), entry.Value)

	// Keys
	_, err = kv.Put(ctx, "k2", []byte("v"))
	require.NoError(t, err)
	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"k1", "k2"}, keys)

	// Delete is idempotent
	require.NoError(t, kv.Delete(ctx, "k1"))
	require.NoError(t, kv.Delete(ctx, "k1"))
	ok, err = kv.Has(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_Publish(t *testing.T) {
	skipUnlessIntegration(t)

	tc := NewTestClient(t)

	sub, err := tc.Client.Conn().SubscribeSync("fundable.test")
	require.NoError(t, err)

	require.NoError(t, tc.Client.Publish("fundable.test", []byte("hello")))

	msg, err := sub.NextMsg(defaultWait)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), msg.Data)
}
