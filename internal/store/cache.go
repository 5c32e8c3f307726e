package store

import (
	"sync"
	"time"

	"github.com/MrSnakeDoc/promobot/internal/domain"
)

// entry is one cached committed document.
type entry struct {
	doc domain.Document
	// raw is the decodable encoding of doc, reused as the next backup.
	raw []byte
	// persisted is false for defaults that were never written.
	persisted bool
	loadedAt  time.Time
	// sticky entries never expire; used after an unrecoverable load so the
	// loss is reported once.
	sticky bool
}

// documentCache keeps the last committed value of each document. Every commit
// bumps the document's revision so a slow reader can't overwrite a newer value.
type documentCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[domain.DocumentKey]entry
	revs    map[domain.DocumentKey]uint64
}

func newDocumentCache(ttl time.Duration) *documentCache {
	return &documentCache{
		ttl:     ttl,
		entries: make(map[domain.DocumentKey]entry),
		revs:    make(map[domain.DocumentKey]uint64),
	}
}

// get returns the unexpired entry for key.
func (c *documentCache) get(key domain.DocumentKey, now time.Time) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.sticky && c.ttl > 0 && now.Sub(e.loadedAt) > c.ttl {
		return entry{}, false
	}
	return e, true
}

// rev returns the current revision of key.
func (c *documentCache) rev(key domain.DocumentKey) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.revs[key]
}

// fill stores e only if no commit happened since rev was read.
func (c *documentCache) fill(key domain.DocumentKey, e entry, rev uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.revs[key] != rev {
		return false
	}
	c.entries[key] = e
	return true
}

// commit stores e as the newest value of key.
func (c *documentCache) commit(key domain.DocumentKey, e entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.revs[key]++
	c.entries[key] = e
}

// invalidate drops key so the next load goes to the backend.
func (c *documentCache) invalidate(key domain.DocumentKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.revs[key]++
	delete(c.entries, key)
}
