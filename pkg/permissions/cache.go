// Package permissions caches authorization decisions per session context.
//
// Entries live for a fixed TTL and are scoped to a context mode and key
// ("global" or a tenant id), so tenant and global decisions never bleed
// into each other. Entries are idempotent snapshots: concurrent flows may
// read and write without coordination beyond the cache's own lock,
// last-writer-wins.
package permissions

import (
	"sync"
	"time"

	"github.com/authbridge/authbridge/pkg/session"
)

// DefaultTTL is how long a cached permission snapshot is served before a
// read falls through to the backend.
const DefaultTTL = 5 * time.Minute

// GlobalKey is the cache key for the global context.
const GlobalKey = "global"

// Set is an immutable snapshot of granted object/action pairs.
type Set struct {
	pairs map[session.Permission]struct{}
	list  []session.Permission
}

// NewSet builds a snapshot from object/action pairs.
func NewSet(perms []session.Permission) *Set {
	s := &Set{
		pairs: make(map[session.Permission]struct{}, len(perms)),
		list:  append([]session.Permission(nil), perms...),
	}
	for _, p := range perms {
		s.pairs[p] = struct{}{}
	}
	return s
}

// Has reports whether the object/action pair is granted.
func (s *Set) Has(object, action string) bool {
	_, ok := s.pairs[session.Permission{Object: object, Action: action}]
	return ok
}

// List returns the granted pairs.
func (s *Set) List() []session.Permission {
	return append([]session.Permission(nil), s.list...)
}

// Len returns the number of granted pairs.
func (s *Set) Len() int {
	return len(s.list)
}

type entry struct {
	permissions *Set
	timestamp   time.Time
}

// Cache is a TTL cache of permission snapshots keyed by context.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[session.Mode]map[string]entry

	// now is replaceable in tests.
	now func() time.Time
}

// NewCache creates a cache. A non-positive ttl selects DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[session.Mode]map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached snapshot for key and mode. Entries at or past the
// TTL are treated as absent; the next Put overwrites them.
func (c *Cache) Get(key string, mode session.Mode) (*Set, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byKey, ok := c.entries[mode]
	if !ok {
		return nil, false
	}
	e, ok := byKey[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.timestamp) >= c.ttl {
		return nil, false
	}
	return e.permissions, true
}

// Put stores a snapshot with the current timestamp, replacing any prior
// entry for the key and mode.
func (c *Cache) Put(key string, mode session.Mode, perms *Set) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byKey, ok := c.entries[mode]
	if !ok {
		byKey = make(map[string]entry)
		c.entries[mode] = byKey
	}
	byKey[key] = entry{permissions: perms, timestamp: c.now()}
}

// ClearKey drops the entry for one key within a mode.
func (c *Cache) ClearKey(key string, mode session.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if byKey, ok := c.entries[mode]; ok {
		delete(byKey, key)
	}
}

// ClearMode drops every entry for a mode.
func (c *Cache) ClearMode(mode session.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, mode)
}

// ClearAll drops everything.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[session.Mode]map[string]entry)
}
