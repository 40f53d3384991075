// Package qrcache caches rendered QR image descriptors so repeated tool calls
// for the same payment do not re-render identical images.
package qrcache

import (
	"container/list"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Image is a rendered QR code descriptor as returned to MCP clients.
type Image struct {
	Data       string `json:"data"` // data:image/png;base64,...
	Format     string `json:"format"`
	Style      string `json:"style"`
	Dimensions string `json:"dimensions"`
}

// Key identifies one cached rendering. At most one live entry exists per key.
type Key struct {
	Identifier string
	QRType     string
	Size       int
	Style      string
	Branding   bool
}

func (k Key) String() string {
	return fmt.Sprintf("%s-%s-%d-%s-%t", k.Identifier, k.QRType, k.Size, k.Style, k.Branding)
}

type entry struct {
	key          Key
	data         Image
	timestamp    time.Time
	accessCount  int
	lastAccessed time.Time
}

// Stats is a monitoring snapshot, not authoritative memory accounting.
type Stats struct {
	Size           int           `json:"size"`
	MaxSize        int           `json:"max_size"`
	HitRate        float64       `json:"hit_rate"`
	OldestEntryAge time.Duration `json:"oldest_entry_age_ms"`
	MemoryUsage    int           `json:"memory_usage_bytes"`
}

// Options bound the cache.
type Options struct {
	MaxEntries    int
	TTL           time.Duration
	SweepInterval time.Duration
}

const (
	defaultMaxEntries    = 500
	defaultTTL           = time.Hour // matches payment expiry
	defaultSweepInterval = 10 * time.Minute

	// Rough per-entry overhead on top of the base64 payload.
	entryOverheadBytes = 200
)

// Cache is an LRU+TTL cache over rendered QR descriptors.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*list.Element
	order   *list.List // front = least recently used
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	runOnce sync.Once
}

// New creates a cache. The background sweep does not run until Start.
func New(opts Options, logger *slog.Logger) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	return &Cache{
		entries: make(map[Key]*list.Element),
		order:   list.New(),
		opts:    opts,
		logger:  logger.With("component", "qr_cache"),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the periodic sweep that bounds memory even for keys nobody
// re-requests.
func (c *Cache) Start() {
	c.runOnce.Do(func() {
		c.wg.Add(1)
		go c.sweepLoop()
	})
}

// Shutdown stops the sweep and clears all entries.
func (c *Cache) Shutdown() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	c.wg.Wait()
	c.Clear()
	c.logger.Info("qr cache shutdown")
}

func (c *Cache) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Cleanup()
		case <-c.stopCh:
			return
		}
	}
}

// Get returns the cached image for key, or nil on a miss. Expired entries are
// deleted lazily here, not only by the sweep.
func (c *Cache) Get(key Key) *Image {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil
	}
	e := el.Value.(*entry)
	now := c.now()
	if now.Sub(e.timestamp) > c.opts.TTL {
		c.removeLocked(el)
		c.logger.Debug("qr cache entry expired", "key", key.String())
		return nil
	}

	e.accessCount++
	e.lastAccessed = now
	c.order.MoveToBack(el)

	data := e.data
	return &data
}

// Set stores an image, evicting the single least-recently-used entry when the
// cache is full and key is new.
func (c *Cache) Set(key Key, img Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.data = img
		e.timestamp = now
		e.accessCount++
		e.lastAccessed = now
		c.order.MoveToBack(el)
		return
	}

	if len(c.entries) >= c.opts.MaxEntries {
		c.evictLRULocked()
	}

	el := c.order.PushBack(&entry{
		key:          key,
		data:         img,
		timestamp:    now,
		accessCount:  1,
		lastAccessed: now,
	})
	c.entries[key] = el
	c.logger.Debug("qr cached", "key", key.String(), "cache_size", len(c.entries))
}

// Has reports whether a live (non-expired) entry exists without touching
// recency order.
func (c *Cache) Has(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().Sub(el.Value.(*entry).timestamp) > c.opts.TTL {
		c.removeLocked(el)
		return false
	}
	return true
}

// Cleanup removes TTL-expired entries. Returns the number removed.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if now.Sub(el.Value.(*entry).timestamp) > c.opts.TTL {
			c.removeLocked(el)
			removed++
		}
		el = next
	}
	if removed > 0 {
		c.logger.Debug("qr cache cleanup completed", "expired", removed, "remaining", len(c.entries))
	}
	return removed
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[Key]*list.Element)
	c.order.Init()
}

// Stats computes the monitoring snapshot. Hit rate approximates accesses
// beyond the first divided by total accesses.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Size:    len(c.entries),
		MaxSize: c.opts.MaxEntries,
	}

	totalAccesses := 0
	hits := 0
	now := c.now()
	var oldest time.Time
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		totalAccesses += e.accessCount
		if e.accessCount > 1 {
			hits += e.accessCount - 1
		}
		if oldest.IsZero() || e.timestamp.Before(oldest) {
			oldest = e.timestamp
		}
		stats.MemoryUsage += len(e.data.Data) + entryOverheadBytes
	}
	if totalAccesses > 0 {
		stats.HitRate = float64(hits) / float64(totalAccesses)
	}
	if !oldest.IsZero() {
		stats.OldestEntryAge = now.Sub(oldest)
	}
	return stats
}

func (c *Cache) evictLRULocked() {
	el := c.order.Front()
	if el == nil {
		return
	}
	key := el.Value.(*entry).key
	c.removeLocked(el)
	c.logger.Debug("qr cache lru eviction", "evicted_key", key.String(), "cache_size", len(c.entries))
}

func (c *Cache) removeLocked(el *list.Element) {
	delete(c.entries, el.Value.(*entry).key)
	c.order.Remove(el)
}
