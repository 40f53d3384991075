package qrcache

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testKey(identifier string) Key {
	return Key{Identifier: identifier, QRType: "payment_uri", Size: 512, Style: "branded", Branding: true}
}

func testImage(payload string) Image {
	return Image{
		Data:       "data:image/png;base64," + payload,
		Format:     "png",
		Style:      "branded",
		Dimensions: "512x512",
	}
}

func TestSetThenGetReturnsStoredPayload(t *testing.T) {
	c := New(Options{MaxEntries: 10, TTL: time.Hour}, testLogger())

	img := testImage("AAAA")
	c.Set(testKey("pay-1"), img)

	got := c.Get(testKey("pay-1"))
	require.NotNil(t, got)
	assert.Equal(t, img, *got)
}

func TestGetMissOnAbsentKey(t *testing.T) {
	c := New(Options{MaxEntries: 10, TTL: time.Hour}, testLogger())
	assert.Nil(t, c.Get(testKey("pay-missing")))
}

func TestKeyPartsDistinguishEntries(t *testing.T) {
	c := New(Options{MaxEntries: 10, TTL: time.Hour}, testLogger())

	k1 := testKey("pay-1")
	k2 := k1
	k2.Size = 256

	c.Set(k1, testImage("big"))
	c.Set(k2, testImage("small"))

	require.NotNil(t, c.Get(k1))
	require.NotNil(t, c.Get(k2))
	assert.NotEqual(t, c.Get(k1).Data, c.Get(k2).Data)
}

func TestGetAfterTTLReturnsNil(t *testing.T) {
	c := New(Options{MaxEntries: 10, TTL: time.Minute}, testLogger())

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set(testKey("pay-1"), testImage("AAAA"))

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.Nil(t, c.Get(testKey("pay-1")))
	// Lazy deletion: the expired entry is gone, not just hidden.
	assert.Equal(t, 0, c.Stats().Size)
}

func TestLRUEvictionPicksLeastRecentlyUsed(t *testing.T) {
	c := New(Options{MaxEntries: 3, TTL: time.Hour}, testLogger())

	for i := 1; i <= 3; i++ {
		c.Set(testKey(fmt.Sprintf("pay-%d", i)), testImage("X"))
	}

	// Touch pay-1 and pay-3; pay-2 becomes least recently used.
	require.NotNil(t, c.Get(testKey("pay-1")))
	require.NotNil(t, c.Get(testKey("pay-3")))

	c.Set(testKey("pay-4"), testImage("Y"))

	assert.NotNil(t, c.Get(testKey("pay-1")))
	assert.Nil(t, c.Get(testKey("pay-2")))
	assert.NotNil(t, c.Get(testKey("pay-3")))
	assert.NotNil(t, c.Get(testKey("pay-4")))
}

func TestSetExistingKeyDoesNotEvict(t *testing.T) {
	c := New(Options{MaxEntries: 2, TTL: time.Hour}, testLogger())

	c.Set(testKey("pay-1"), testImage("A"))
	c.Set(testKey("pay-2"), testImage("B"))
	c.Set(testKey("pay-1"), testImage("A2"))

	assert.Equal(t, 2, c.Stats().Size)
	assert.Equal(t, "data:image/png;base64,A2", c.Get(testKey("pay-1")).Data)
	assert.NotNil(t, c.Get(testKey("pay-2")))
}

func TestCleanupRemovesExpiredEntries(t *testing.T) {
	c := New(Options{MaxEntries: 10, TTL: time.Minute}, testLogger())

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set(testKey("pay-old"), testImage("A"))

	c.now = func() time.Time { return now.Add(30 * time.Second) }
	c.Set(testKey("pay-fresh"), testImage("B"))

	c.now = func() time.Time { return now.Add(75 * time.Second) }
	removed := c.Cleanup()

	assert.Equal(t, 1, removed)
	assert.Nil(t, c.Get(testKey("pay-old")))
	assert.NotNil(t, c.Get(testKey("pay-fresh")))
}

func TestStats(t *testing.T) {
	c := New(Options{MaxEntries: 10, TTL: time.Hour}, testLogger())

	c.Set(testKey("pay-1"), testImage("AAAA"))
	c.Get(testKey("pay-1"))
	c.Get(testKey("pay-1"))
	c.Get(testKey("pay-miss"))

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 10, stats.MaxSize)
	// 3 total accesses on the entry, first one is not a hit.
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.001)
	assert.Greater(t, stats.MemoryUsage, entryOverheadBytes)
}

func TestHasDoesNotBumpRecency(t *testing.T) {
	c := New(Options{MaxEntries: 2, TTL: time.Hour}, testLogger())

	c.Set(testKey("pay-1"), testImage("A"))
	c.Set(testKey("pay-2"), testImage("B"))

	require.True(t, c.Has(testKey("pay-1")))

	// pay-1 is still least recently used despite the Has check.
	c.Set(testKey("pay-3"), testImage("C"))
	assert.Nil(t, c.Get(testKey("pay-1")))
	assert.NotNil(t, c.Get(testKey("pay-2")))
}

func TestShutdownClears(t *testing.T) {
	c := New(Options{MaxEntries: 10, TTL: time.Hour, SweepInterval: 10 * time.Millisecond}, testLogger())
	c.Start()
	c.Set(testKey("pay-1"), testImage("A"))

	c.Shutdown()
	assert.Equal(t, 0, c.Stats().Size)
}
