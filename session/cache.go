package session

import (
	"context"
	"sync"
	"time"
)

// CacheTTL is how long a CachedStore serves a session Get from memory
// before re-reading the backing Store, avoiding a store round trip
// on every transaction in a busy session.
const CacheTTL = 60 * time.Second

type cacheEntry struct {
	session Session
	at      time.Time
}

// CachedStore wraps a Store with a short-lived in-memory read cache for
// Get. Every write path (RecordTransaction, UpdateRisk, Terminate,
// Cleanup) invalidates or refreshes the cached entry so a cache hit
// never serves data older than the most recent write this process made.
type CachedStore struct {
	Store
	ttl   time.Duration
	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// NewCachedStore wraps backing with the default 60-second TTL.
func NewCachedStore(backing Store) *CachedStore {
	return &CachedStore{Store: backing, ttl: CacheTTL, cache: make(map[string]cacheEntry), now: time.Now}
}

func (c *CachedStore) put(s Session) {
	c.mu.Lock()
	c.cache[s.ID] = cacheEntry{session: s, at: c.now()}
	c.mu.Unlock()
}

func (c *CachedStore) invalidate(sessionID string) {
	c.mu.Lock()
	delete(c.cache, sessionID)
	c.mu.Unlock()
}

// Get returns the cached session when the entry is younger than the
// TTL, otherwise falls through to the backing Store and refreshes the
// cache.
func (c *CachedStore) Get(ctx context.Context, sessionID string) (Session, error) {
	c.mu.Lock()
	entry, ok := c.cache[sessionID]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.at) < c.ttl {
		return entry.session, nil
	}

	sess, err := c.Store.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	c.put(sess)
	return sess, nil
}

// RecordTransaction delegates to the backing Store and refreshes the
// cache with the result, so a subsequent Get in the same session sees
// the update immediately rather than waiting out a stale TTL.
func (c *CachedStore) RecordTransaction(ctx context.Context, in RecordTransactionInput) (Session, error) {
	sess, err := c.Store.RecordTransaction(ctx, in)
	if err != nil {
		return Session{}, err
	}
	c.put(sess)
	return sess, nil
}

// UpdateRisk delegates to the backing Store and refreshes the cache.
func (c *CachedStore) UpdateRisk(ctx context.Context, sessionID string, riskScore float64, signals, anomalies []string) (Session, error) {
	sess, err := c.Store.UpdateRisk(ctx, sessionID, riskScore, signals, anomalies)
	if err != nil {
		return Session{}, err
	}
	c.put(sess)
	return sess, nil
}

// Terminate delegates to the backing Store and refreshes the cache.
func (c *CachedStore) Terminate(ctx context.Context, sessionID, reason, actor string, now time.Time) (Session, error) {
	sess, err := c.Store.Terminate(ctx, sessionID, reason, actor, now)
	if err != nil {
		return Session{}, err
	}
	c.put(sess)
	return sess, nil
}

// Cleanup delegates to the backing Store and drops the whole cache,
// since Cleanup can terminate an unbounded number of sessions this
// process never observed directly.
func (c *CachedStore) Cleanup(ctx context.Context, olderThan time.Duration, now time.Time) (int, error) {
	n, err := c.Store.Cleanup(ctx, olderThan, now)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.cache = make(map[string]cacheEntry)
	c.mu.Unlock()
	return n, nil
}
