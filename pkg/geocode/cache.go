package geocode

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/geofuse/geofuse/internal/model"
)

// cacheKey returns SHA-256 hex of the normalized operation and query.
func cacheKey(op, query string) string {
	normalized := op + "|" + strings.ToLower(strings.TrimSpace(query))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// memCache is an in-memory TTL cache for geocode responses. Non-matches are
// cached too (as nil) so repeated misses skip the network. A nil *memCache is
// a no-op.
type memCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	cand    *model.Candidate
	savedAt time.Time
}

func newCache(ttl time.Duration) *memCache {
	return &memCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *memCache) get(key string) (*model.Candidate, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Since(e.savedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.cand, true
}

func (c *memCache) put(key string, cand *model.Candidate) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{cand: cand, savedAt: time.Now()}
}
