package tokenmanager

import (
	"sync"
	"time"
)

type cacheEntry struct {
	token     string
	expiresAt time.Time
}

// TokenCache is a short-lived in-process cache of access tokens keyed by
// tenant. It exists to absorb bursts of concurrent callers within one
// invocation; it is deliberately not shared storage, so a process restart
// resets it. It is injected into the Manager rather than held as package
// state to keep that contract visible.
type TokenCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[uint]cacheEntry
	now     func() time.Time
}

// NewTokenCache creates a token cache with the given entry TTL.
func NewTokenCache(ttl time.Duration) *TokenCache {
	return &TokenCache{
		ttl:     ttl,
		entries: make(map[uint]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached token for a tenant if it has not expired.
func (c *TokenCache) Get(tenantID uint) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[tenantID]
	if !ok || c.now().After(entry.expiresAt) {
		return "", false
	}
	return entry.token, true
}

// Put stores a token for a tenant for the cache TTL.
func (c *TokenCache) Put(tenantID uint, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[tenantID] = cacheEntry{
		token:     token,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate drops the cached token for a tenant.
func (c *TokenCache) Invalidate(tenantID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, tenantID)
}

// Reset drops all cached tokens.
func (c *TokenCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[uint]cacheEntry)
}
