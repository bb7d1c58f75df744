package resilience

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultIdempotencyTTL is how long a cached write result stays valid.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyRecord is one cached write result.
type IdempotencyRecord struct {
	Key       string          `json:"key"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// IdempotencyCache maps deterministic write keys to previously observed
// results. Check must treat expired entries as misses and evict them lazily.
type IdempotencyCache interface {
	Check(ctx context.Context, key string) (json.RawMessage, bool, error)
	Store(ctx context.Context, key string, result json.RawMessage, ttl time.Duration) error
}

// IdempotencyKey derives a deterministic key from the caller identity, the
// operation name, and its arguments. encoding/json marshals map keys in
// sorted order, so the same logical call always hashes identically
// regardless of argument construction order.
func IdempotencyKey(identity, operation string, args map[string]any) (string, error) {
	payload := struct {
		Identity  string         `json:"identity"`
		Operation string         `json:"operation"`
		Args      map[string]any `json:"args"`
	}{identity, operation, args}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrap(err, "idempotency: marshal key payload")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// MemoryCache is a process-local IdempotencyCache backed by a map.
// Expired entries are evicted on access, not by a background sweep.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]IdempotencyRecord

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewMemoryCache creates an empty in-memory idempotency cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]IdempotencyRecord),
		nowFunc: time.Now,
	}
}

// Check returns the cached result for key if present and unexpired.
// An expired entry counts as a miss and is removed.
func (c *MemoryCache) Check(_ context.Context, key string) (json.RawMessage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.nowFunc().Before(rec.ExpiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return rec.Result, true, nil
}

// Store inserts or overwrites the result for key with the given TTL.
func (c *MemoryCache) Store(_ context.Context, key string, result json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	now := c.nowFunc()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = IdempotencyRecord{
		Key:       key,
		Result:    result,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

// PurgeExpired removes all expired entries and returns how many were dropped.
func (c *MemoryCache) PurgeExpired() int {
	now := c.nowFunc()

	c.mu.Lock()
	defer c.mu.Unlock()
	var dropped int
	for key, rec := range c.entries {
		if !now.Before(rec.ExpiresAt) {
			delete(c.entries, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of live entries, counting any not yet evicted.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
