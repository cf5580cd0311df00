// Package timestamp provides standardized Unix timestamp handling and the
// clock abstraction used by the streaming engine.
//
// This package uses int64 seconds as the canonical timestamp format, matching
// ledger-style timestamps. All vesting arithmetic operates on these values,
// so every component must draw time from the same Clock rather than calling
// time.Now directly.
//
// Zero Value Semantics:
//   - A timestamp value of 0 means "not set" or "unknown"
//   - Functions handle zero values gracefully, returning appropriate defaults
package timestamp

import (
	"sync"
	"time"
)

// Now returns the current time as Unix seconds.
func Now() int64 {
	return time.Now().Unix()
}

// ToUnix converts a time.Time to Unix seconds.
func ToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// FromUnix converts Unix seconds to time.Time in UTC.
// Returns zero time if the timestamp is 0.
func FromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// Format renders a Unix-seconds timestamp as RFC3339 for display.
// Returns an empty string for the zero timestamp.
func Format(sec int64) string {
	if sec == 0 {
		return ""
	}
	return FromUnix(sec).Format(time.RFC3339)
}

// Clock is the time source consumed by the engine. Implementations must be
// monotonic from the engine's point of view: successive Now calls never go
// backwards within a process.
type Clock interface {
	Now() int64
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current Unix time in seconds.
func (SystemClock) Now() int64 {
	return Now()
}

// ManualClock is a settable clock for tests and simulations.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock creates a manual clock starting at the given Unix time.
func NewManualClock(start int64) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to the given time. Moving backwards is ignored so the
// clock keeps the monotonic contract.
func (c *ManualClock) Set(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.now {
		c.now = t
	}
}

// Advance moves the clock forward by d seconds. Negative values are ignored.
func (c *ManualClock) Advance(d int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now += d
	}
}
