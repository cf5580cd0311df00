package distributor

import (
	"context"
	"sync"

	"github.com/Fundable-Protocol/stellar-client/errors"
	"github.com/Fundable-Protocol/stellar-client/stream"
)

// Config is the init-once distributor configuration.
type Config struct {
	Admin      stream.Address `json:"admin"`
	FeeAddress stream.Address `json:"fee_address"`
	FeeBps     uint32         `json:"fee_bps"`
}

// GlobalStats aggregates all distributions.
type GlobalStats struct {
	TotalDistributions uint64 `json:"total_distributions"`
	TotalAmount        int64  `json:"total_amount"`
}

// TokenStats aggregates distributions of one token.
type TokenStats struct {
	TotalAmount       int64  `json:"total_amount"`
	DistributionCount uint32 `json:"distribution_count"`
	LastTime          int64  `json:"last_time"`
}

// UserStats aggregates distributions initiated by one sender.
type UserStats struct {
	DistributionsInitiated uint32 `json:"distributions_initiated"`
	TotalAmount            int64  `json:"total_amount"`
}

// Record is one entry of the append-only distribution history.
type Record struct {
	Sender          stream.Address `json:"sender"`
	Token           stream.Address `json:"token"`
	Amount          int64          `json:"amount"`
	RecipientsCount uint32         `json:"recipients_count"`
	Timestamp       int64          `json:"timestamp"`
}

// Store persists distributor configuration, statistics, and history.
// Stats reads return nil for unknown tokens and users.
type Store interface {
	// GetConfig returns the configuration, or ErrNotInitialized.
	GetConfig(ctx context.Context) (*Config, error)
	// CreateConfig writes the init-once configuration; ErrKeyExists if present.
	CreateConfig(ctx context.Context, cfg *Config) error
	PutConfig(ctx context.Context, cfg *Config) error

	// GetGlobalStats returns the global stats; zero value when absent.
	GetGlobalStats(ctx context.Context) (*GlobalStats, error)
	PutGlobalStats(ctx context.Context, g *GlobalStats) error

	GetTokenStats(ctx context.Context, token stream.Address) (*TokenStats, error)
	PutTokenStats(ctx context.Context, token stream.Address, s *TokenStats) error

	GetUserStats(ctx context.Context, user stream.Address) (*UserStats, error)
	PutUserStats(ctx context.Context, user stream.Address, s *UserStats) error

	// AppendHistory adds a record at the next sequence number, starting at 0.
	AppendHistory(ctx context.Context, r *Record) error
	// History returns up to limit records starting at sequence start; gaps
	// and out-of-range reads yield fewer records, never an error.
	History(ctx context.Context, start, limit uint64) ([]Record, error)
}

// MemoryStore is an in-memory Store for tests and embedded deployments.
type MemoryStore struct {
	mu      sync.Mutex
	config  *Config
	global  GlobalStats
	tokens  map[stream.Address]TokenStats
	users   map[stream.Address]UserStats
	history []Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[stream.Address]TokenStats),
		users:  make(map[stream.Address]UserStats),
	}
}

// GetConfig implements Store.
func (m *MemoryStore) GetConfig(_ context.Context) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		return nil, errors.WrapInvalid(errors.ErrNotInitialized, "distributor", "GetConfig", "load config")
	}
	cfg := *m.config
	return &cfg, nil
}

// CreateConfig implements Store.
func (m *MemoryStore) CreateConfig(_ context.Context, cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config != nil {
		return errors.WrapInvalid(errors.ErrKeyExists, "distributor", "CreateConfig", "config exists")
	}
	c := *cfg
	m.config = &c
	return nil
}

// PutConfig implements Store.
func (m *MemoryStore) PutConfig(_ context.Context, cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cfg
	m.config = &c
	return nil
}

// GetGlobalStats implements Store.
func (m *MemoryStore) GetGlobalStats(_ context.Context) (*GlobalStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.global
	return &g, nil
}

// PutGlobalStats implements Store.
func (m *MemoryStore) PutGlobalStats(_ context.Context, g *GlobalStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global = *g
	return nil
}

// GetTokenStats implements Store.
func (m *MemoryStore) GetTokenStats(_ context.Context, token stream.Address) (*TokenStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.tokens[token]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// PutTokenStats implements Store.
func (m *MemoryStore) PutTokenStats(_ context.Context, token stream.Address, s *TokenStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = *s
	return nil
}

// GetUserStats implements Store.
func (m *MemoryStore) GetUserStats(_ context.Context, user stream.Address) (*UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.users[user]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// PutUserStats implements Store.
func (m *MemoryStore) PutUserStats(_ context.Context, user stream.Address, s *UserStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user] = *s
	return nil
}

// AppendHistory implements Store.
func (m *MemoryStore) AppendHistory(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *r)
	return nil
}

// History implements Store.
func (m *MemoryStore) History(_ context.Context, start, limit uint64) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := uint64(len(m.history))
	if start >= n || limit == 0 {
		return nil, nil
	}
	end := start + limit
	if end < start || end > n { // wrapped or past the tail
		end = n
	}
	out := make([]Record, end-start)
	copy(out, m.history[start:end])
	return out, nil
}
