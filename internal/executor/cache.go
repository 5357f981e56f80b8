package executor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// cacheEntry is one cached tool result.
type cacheEntry struct {
	output    *ToolOutput
	expiresAt time.Time
}

// Cache is a TTL cache of tool results keyed by a normalized form of
// (tool_id, input). Identical invocations inside the TTL window are served
// without touching the provider.
type Cache struct {
	ttl time.Duration

	// entries maps normalized keys to cached results.
	entries map[string]cacheEntry
	// mu protects entries.
	mu sync.Mutex

	// now is replaceable for tests.
	now func() time.Time
}

// NewCache creates a Cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// SetTTL replaces the TTL, for config hot reload. Already-cached entries
// keep their original expiry.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// Key computes the normalized cache key for a tool invocation. JSON
// marshaling sorts map keys, so semantically identical inputs collapse to
// the same key regardless of construction order.
func Key(toolID string, input map[string]any) (string, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("normalize input: %w", err)
	}
	sum := sha256.Sum256(append([]byte(toolID+"\x00"), data...))
	return hex.EncodeToString(sum[:]), nil
}

// Get returns the cached result for a key, or nil if absent or expired.
func (c *Cache) Get(key string) *ToolOutput {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil
	}
	return e.output
}

// Put stores a result under a key for the cache TTL.
func (c *Cache) Put(key string, out *ToolOutput) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{output: out, expiresAt: c.now().Add(c.ttl)}
}

// Len returns the number of cached entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// setNow replaces the clock for tests.
func (c *Cache) setNow(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
