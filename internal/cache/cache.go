// Package cache provides an in-memory TTL cache with ETag support.
//
// Entries have two horizons: Get serves an entry until it expires, GetStale
// keeps serving it for a retention window afterwards so a failed upstream
// read can fall back to the last good payload.
package cache

import (
	"crypto/md5"
	"fmt"
	"strings"
	"sync"
	"time"
)

// TTLs per payload.
const (
	TTLDashboard   = 5 * time.Minute // Cleared early on poll_completed
	TTLPollRun     = 1 * time.Minute
	TTLCoordinates = 1 * time.Hour
	TTLSegment     = 15 * time.Minute
	// StaleSegment keeps a live segment reading around after expiry so it
	// can be served when Strava is unavailable.
	StaleSegment = 24 * time.Hour
)

// PrefixDashboard namespaces every key derived from the snapshot log. A
// finished poll run invalidates the whole prefix.
const PrefixDashboard = "dashboard:"

const evictEvery = 5 * time.Minute

type entry struct {
	data      []byte
	etag      string
	expiresAt time.Time
	keepUntil time.Time // >= expiresAt
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Enabled     bool `json:"enabled"`
	TotalKeys   int  `json:"total_keys"`
	ActiveKeys  int  `json:"active_keys"`
	StaleKeys   int  `json:"stale_keys"`
	ExpiredKeys int  `json:"expired_keys"`
}

// Cache is a thread-safe in-memory TTL cache. A disabled cache stores
// nothing but still computes ETags.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	enabled bool
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

// New creates a cache. An enabled cache runs an eviction goroutine until
// Close.
func New(enabled bool) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		enabled: enabled,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if enabled {
		go c.evictLoop(evictEvery)
	}
	return c
}

// Close stops the eviction goroutine. Safe to call more than once.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// Get returns an unexpired entry.
func (c *Cache) Get(key string) (data []byte, etag string, ok bool) {
	return c.lookup(key, func(e entry) time.Time { return e.expiresAt })
}

// GetStale returns an entry that is still retained, expired or not.
func (c *Cache) GetStale(key string) (data []byte, etag string, ok bool) {
	return c.lookup(key, func(e entry) time.Time { return e.keepUntil })
}

func (c *Cache) lookup(key string, horizon func(entry) time.Time) ([]byte, string, bool) {
	if !c.enabled {
		return nil, "", false
	}
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(horizon(e)) {
		return nil, "", false
	}
	return e.data, e.etag, true
}

// Set stores data for ttl and returns its ETag.
func (c *Cache) Set(key string, data []byte, ttl time.Duration) string {
	return c.SetStale(key, data, ttl, 0)
}

// SetStale stores data for ttl and keeps it readable through GetStale for
// staleFor after that.
func (c *Cache) SetStale(key string, data []byte, ttl, staleFor time.Duration) string {
	etag := ComputeETag(data)
	if !c.enabled {
		return etag
	}
	expires := c.now().Add(ttl)
	c.mu.Lock()
	c.entries[key] = entry{data: data, etag: etag, expiresAt: expires, keepUntil: expires.Add(staleFor)}
	c.mu.Unlock()
	return etag
}

// Delete removes one key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// DeletePrefix removes every key starting with prefix and returns how many
// were removed.
func (c *Cache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Stats counts entries by state.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Stats{Enabled: c.enabled, TotalKeys: len(c.entries)}
	now := c.now()
	for _, e := range c.entries {
		switch {
		case now.Before(e.expiresAt):
			st.ActiveKeys++
		case now.Before(e.keepUntil):
			st.StaleKeys++
		default:
			st.ExpiredKeys++
		}
	}
	return st
}

func (c *Cache) evictLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evict()
		case <-c.stop:
			return
		}
	}
}

// evict drops entries past their retention.
func (c *Cache) evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.entries {
		if now.After(e.keepUntil) {
			delete(c.entries, key)
		}
	}
}

// ComputeETag generates a weak ETag from response data using MD5.
func ComputeETag(data []byte) string {
	hash := md5.Sum(data)
	return fmt.Sprintf(`W/"%x"`, hash[:8])
}

// CheckETagMatch reports whether an If-None-Match header (a single tag, a
// comma-separated list, or "*") matches etag.
func CheckETagMatch(ifNoneMatch, etag string) bool {
	switch strings.TrimSpace(ifNoneMatch) {
	case "":
		return false
	case "*":
		return true
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		if strings.TrimSpace(candidate) == etag {
			return true
		}
	}
	return false
}
