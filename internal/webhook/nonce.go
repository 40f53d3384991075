package webhook

import (
	"sync"
	"time"
)

// DefaultNonceMaxAge bounds the replay-protection window. Restart resets the
// window, which is acceptable given how short it is.
const DefaultNonceMaxAge = 5 * time.Minute

// NonceCache tracks recently seen nonces to reject replayed deliveries.
type NonceCache struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	maxAge time.Duration
	now    func() time.Time
}

// NewNonceCache creates a cache with the given freshness window.
// maxAge <= 0 selects the default.
func NewNonceCache(maxAge time.Duration) *NonceCache {
	if maxAge <= 0 {
		maxAge = DefaultNonceMaxAge
	}
	return &NonceCache{
		seen:   make(map[string]time.Time),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Add records a nonce. Returns false if the nonce was already seen within the
// freshness window. Expired entries are purged lazily on each call to bound
// memory.
func (c *NonceCache) Add(nonce string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	cutoff := now.Add(-c.maxAge)
	for n, seenAt := range c.seen {
		if seenAt.Before(cutoff) {
			delete(c.seen, n)
		}
	}

	if _, ok := c.seen[nonce]; ok {
		return false
	}
	c.seen[nonce] = now
	return true
}

// Size returns the number of tracked nonces.
func (c *NonceCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Clear drops all tracked nonces.
func (c *NonceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = make(map[string]time.Time)
}
