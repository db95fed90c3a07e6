package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"zerosum_client/internal/clock"
)

// DefaultCapacity is the entry bound before capacity cleanup kicks in.
const DefaultCapacity = 100

type entry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// Cache is an in-memory TTL store keyed by entity kind, id and viewer.
// Expired entries are evicted lazily on access or when capacity is exceeded;
// there is no background sweeper.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	capacity int
	clock    clock.Clock
}

// New creates a cache. capacity <= 0 uses DefaultCapacity, nil clk uses the
// real clock.
func New(capacity int, clk clock.Clock) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Cache{
		entries:  make(map[string]*entry),
		capacity: capacity,
		clock:    clk,
	}
}

// Get returns the value stored under key, or false if it is absent or older
// than its TTL. An expired entry is removed on the way out.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		cacheMisses.WithLabelValues(kindOf(key)).Inc()
		return nil, false
	}
	if e.expired(c.clock.Now()) {
		delete(c.entries, key)
		cacheExpired.WithLabelValues(kindOf(key)).Inc()
		cacheMisses.WithLabelValues(kindOf(key)).Inc()
		return nil, false
	}
	cacheHits.WithLabelValues(kindOf(key)).Inc()
	return e.value, true
}

// Get is the typed form of (*Cache).Get. A stored value of another type
// counts as a miss.
func Get[T any](c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// Set inserts or overwrites key. A non-positive ttl is ignored.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{value: value, storedAt: c.clock.Now(), ttl: ttl}
	if len(c.entries) > c.capacity {
		c.shrinkLocked()
	}
}

// shrinkLocked drops expired entries, then the oldest ones until at most
// half the capacity remains.
func (c *Cache) shrinkLocked() {
	now := c.clock.Now()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			cacheExpired.WithLabelValues(kindOf(k)).Inc()
		}
	}
	if len(c.entries) <= c.capacity {
		return
	}

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].storedAt.Before(c.entries[keys[j]].storedAt)
	})

	target := c.capacity / 2
	for _, k := range keys {
		if len(c.entries) <= target {
			break
		}
		delete(c.entries, k)
		cacheEvictions.WithLabelValues(kindOf(k)).Inc()
	}
}

// Invalidate removes every key containing pattern, or everything when pattern
// is empty. It returns the number of removed entries.
func (c *Cache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pattern == "" {
		n := len(c.entries)
		c.entries = make(map[string]*entry)
		return n
	}

	n := 0
	for k := range c.entries {
		if strings.Contains(k, pattern) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
