// Package ids provides identifier and clock services for convoy.
// Identifiers are opaque strings with at least 128 bits of entropy;
// collisions are assumed cryptographically improbable and not handled.
package ids

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generator produces globally unique identifiers.
type Generator interface {
	// NewID returns a fresh unique identifier.
	NewID() string
}

// Clock supplies timestamps. Injectable so tests can control time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// UUIDGenerator is the default Generator, backed by random UUIDs.
type UUIDGenerator struct{}

// NewID returns a random UUID string.
func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// SystemClock is the default Clock, backed by the wall clock. Successive
// calls never go backwards, which keeps event journals monotonic even
// across wall-clock adjustments.
type SystemClock struct {
	mu   sync.Mutex
	last time.Time
}

// Now returns the current time, clamped to be non-decreasing.
func (c *SystemClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if now.Before(c.last) {
		now = c.last
	}
	c.last = now
	return now
}

// Compile-time verification of interface satisfaction.
var (
	_ Generator = UUIDGenerator{}
	_ Clock     = (*SystemClock)(nil)
)
