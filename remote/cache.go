// ABOUTME: Response cache abstraction and the in-process memory backend
// ABOUTME: Keys are endpoint-scoped so a mutation can invalidate every cached read of that endpoint
package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Cache stores raw response bodies with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

const cacheKeyPrefix = "crm:"

// endpointScope returns the cache key prefix shared by every read of endpoint.
// Query strings and trailing slashes do not change the scope.
func endpointScope(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	endpoint = "/" + strings.Trim(endpoint, "/")
	return cacheKeyPrefix + endpoint + "|"
}

// cacheKey hashes the endpoint with its canonicalized params. encoding/json
// sorts map keys, which makes the encoding order-independent.
func cacheKey(endpoint string, params Params) string {
	canonical := []byte("{}")
	if len(params) > 0 {
		canonical, _ = json.Marshal(params)
	}
	sum := sha256.Sum256(append([]byte(endpoint+"\x00"), canonical...))
	return endpointScope(endpoint) + hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a mutex-protected map. Expired entries are dropped on read.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)

	entry := memoryEntry{value: stored}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet read.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) Close() error {
	return nil
}
