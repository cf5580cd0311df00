package distributor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/natsclient"
	"github.com/Fundable-Protocol/stellar-client/stream"
)

// BucketName is the KV bucket holding distributor records.
const BucketName = "fundable_distributor"

const (
	keyConfig       = "config"
	keyGlobalStats  = "global_stats"
	keyHistoryCount = "history_count"
)

func tokenStatsKey(token stream.Address) string { return fmt.Sprintf("token_stats.%s", token) }
func userStatsKey(user stream.Address) string   { return fmt.Sprintf("user_stats.%s", user) }
func historyKey(seq uint64) string              { return fmt.Sprintf("history.%d", seq) }

// KVStore persists distributor records in a NATS JetStream KV bucket.
type KVStore struct {
	kv *natsclient.KVStore
}

// NewKVStore creates the KV bucket (idempotent) and returns a store over it.
func NewKVStore(ctx context.Context, client *natsclient.Client) (*KVStore, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "distributor", "NewKVStore", "nats client required")
	}

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketName,
		Description: "Fundable distribution records",
		History:     5,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "distributor", "NewKVStore", "create KV bucket")
	}
	return &KVStore{kv: client.NewKVStore(bucket)}, nil
}

func (s *KVStore) get(ctx context.Context, key string, v any) (bool, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return false, nil
		}
		return false, errors.WrapTransient(err, "distributor", "get", "get "+key)
	}
	if err := json.Unmarshal(entry.Value, v); err != nil {
		return false, errors.WrapFatal(err, "distributor", "get", "unmarshal "+key)
	}
	return true, nil
}

func (s *KVStore) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.WrapFatal(err, "distributor", "put", "marshal "+key)
	}
	if _, err := s.kv.Put(ctx, key, data); err != nil {
		return errors.WrapTransient(err, "distributor", "put", "put "+key)
	}
	return nil
}

// GetConfig implements Store.
func (s *KVStore) GetConfig(ctx context.Context) (*Config, error) {
	var cfg Config
	ok, err := s.get(ctx, keyConfig, &cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrNotInitialized
	}
	return &cfg, nil
}

// CreateConfig implements Store.
func (s *KVStore) CreateConfig(ctx context.Context, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return errors.WrapFatal(err, "distributor", "CreateConfig", "marshal config")
	}
	if _, err := s.kv.Create(ctx, keyConfig, data); err != nil {
		if natsclient.IsKVConflictError(err) {
			return errors.WrapInvalid(errors.ErrKeyExists, "distributor", "CreateConfig", "config exists")
		}
		return errors.WrapTransient(err, "distributor", "CreateConfig", "create config")
	}
	return nil
}

// PutConfig implements Store.
func (s *KVStore) PutConfig(ctx context.Context, cfg *Config) error {
	return s.put(ctx, keyConfig, cfg)
}

// GetGlobalStats implements Store.
func (s *KVStore) GetGlobalStats(ctx context.Context) (*GlobalStats, error) {
	var g GlobalStats
	if _, err := s.get(ctx, keyGlobalStats, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// PutGlobalStats implements Store.
func (s *KVStore) PutGlobalStats(ctx context.Context, g *GlobalStats) error {
	return s.put(ctx, keyGlobalStats, g)
}

// GetTokenStats implements Store.
func (s *KVStore) GetTokenStats(ctx context.Context, token stream.Address) (*TokenStats, error) {
	var ts TokenStats
	ok, err := s.get(ctx, tokenStatsKey(token), &ts)
	if err != nil || !ok {
		return nil, err
	}
	return &ts, nil
}

// PutTokenStats implements Store.
func (s *KVStore) PutTokenStats(ctx context.Context, token stream.Address, ts *TokenStats) error {
	return s.put(ctx, tokenStatsKey(token), ts)
}

// GetUserStats implements Store.
func (s *KVStore) GetUserStats(ctx context.Context, user stream.Address) (*UserStats, error) {
	var us UserStats
	ok, err := s.get(ctx, userStatsKey(user), &us)
	if err != nil || !ok {
		return nil, err
	}
	return &us, nil
}

// PutUserStats implements Store.
func (s *KVStore) PutUserStats(ctx context.Context, user stream.Address, us *UserStats) error {
	return s.put(ctx, userStatsKey(user), us)
}

// AppendHistory implements Store. The sequence counter and record land as
// separate keys; the distributor serializes appends so the counter cannot
// race with itself.
func (s *KVStore) AppendHistory(ctx context.Context, r *Record) error {
	var count uint64
	if _, err := s.get(ctx, keyHistoryCount, &count); err != nil {
		return err
	}
	if err := s.put(ctx, historyKey(count), r); err != nil {
		return err
	}
	return s.put(ctx, keyHistoryCount, count+1)
}

// History implements Store. The scan is bounded by the stored record count
// so an oversized or wrapping start+limit cannot run away.
func (s *KVStore) History(ctx context.Context, start, limit uint64) ([]Record, error) {
	var count uint64
	if _, err := s.get(ctx, keyHistoryCount, &count); err != nil {
		return nil, err
	}
	if start >= count || limit == 0 {
		return nil, nil
	}
	end := start + limit
	if end < start || end > count {
		end = count
	}

	var out []Record
	for seq := start; seq < end; seq++ {
		var r Record
		ok, err := s.get(ctx, historyKey(seq), &r)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
