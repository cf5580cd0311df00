// Package retry provides exponential backoff for transient failures.
// Retryability follows the error classification: only errors classified
// transient are retried, everything else returns immediately.
package retry

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Fundable-Protocol/stellar-client/errors"
)

var (
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Config provides retry configuration.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Multiplier grows the delay between attempts, typically 2.0.
	Multiplier float64
	// AddJitter randomizes delays to avoid thundering herds.
	AddJitter bool
}

// DefaultConfig returns the defaults used for storage and transport calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Do executes fn with exponential backoff. A non-transient error, a nil
// error, or an exhausted attempt budget ends the loop; context cancellation
// wins over the remaining budget.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	delay := cfg.InitialDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !errors.IsTransient(err) || attempt >= cfg.MaxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(delay, cfg.AddJitter)):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}

// jittered spreads the delay over [delay/2, delay].
func jittered(delay time.Duration, add bool) time.Duration {
	if !add || delay <= 0 {
		return delay
	}
	randMu.Lock()
	n := randSource.Int63n(int64(delay)/2 + 1)
	randMu.Unlock()
	return delay - time.Duration(n)
}
