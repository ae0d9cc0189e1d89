// Package cache stores decompiled artifacts keyed by archive version,
// entry and option set. Eviction prefers entries that are not open and
// that belong to an inactive archive version.
package cache

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/morozRed/classlens/internal/token"
)

const DefaultCapacity = 75

// Key identifies one decompilation result. Keys compare by value.
type Key struct {
	Version string
	Entry   string
	Options string
}

func (k Key) String() string {
	return strings.Join([]string{k.Version, k.Entry, k.Options}, "|")
}

// Policy exposes the collaborator state consulted at eviction time.
// Nil funcs mean "nothing is open" and "no active version".
type Policy struct {
	IsOpen        func(Key) bool
	ActiveVersion func() string
}

// Cache is safe for concurrent use. The LRU keeps recency order; the
// victim is picked here before every insert at capacity, so the LRU
// never evicts on its own.
type Cache struct {
	mu       sync.Mutex
	capacity int
	policy   Policy
	entries  *lru.Cache
}

func New(capacity int, policy Policy) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	entries, err := lru.New(capacity)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &Cache{
		capacity: capacity,
		policy:   policy,
		entries:  entries,
	}
}

// Get returns the cached artifact and marks it as most recently used.
func (c *Cache) Get(key Key) (token.Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.entries.Get(key)
	if !ok {
		return token.Artifact{}, false
	}
	return value.(token.Artifact), true
}

// Put stores an artifact. Replacing an existing key refreshes it;
// inserting a new key at capacity evicts one entry first. It returns
// the evicted key, if any.
func (c *Cache) Put(key Key, artifact token.Artifact) (Key, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries.Contains(key) {
		c.entries.Add(key, artifact)
		return Key{}, false
	}

	var evicted Key
	var didEvict bool
	for c.entries.Len() >= c.capacity {
		evicted, didEvict = c.victim(), true
		c.entries.Remove(evicted)
	}
	c.entries.Add(key, artifact)
	return evicted, didEvict
}

// victim scans from least recently used and returns the first closed
// entry of an inactive version, else the first closed entry, else the
// oldest entry.
func (c *Cache) victim() Key {
	active := ""
	if c.policy.ActiveVersion != nil {
		active = c.policy.ActiveVersion()
	}
	isOpen := func(Key) bool { return false }
	if c.policy.IsOpen != nil {
		isOpen = c.policy.IsOpen
	}

	keys := c.entries.Keys()
	var firstClosed *Key
	for _, k := range keys {
		key := k.(Key)
		if isOpen(key) {
			continue
		}
		if key.Version != active {
			return key
		}
		if firstClosed == nil {
			firstClosed = &key
		}
	}
	if firstClosed != nil {
		return *firstClosed
	}
	return keys[0].(Key)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Keys returns keys from least to most recently used.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw := c.entries.Keys()
	keys := make([]Key, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k.(Key))
	}
	return keys
}
