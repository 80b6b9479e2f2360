// Package cache keeps compiled block output so unchanged blocks skip the
// compiler when a document is re-rendered.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// entry is one compiler output; it lives in the recency list.
type entry struct {
	key       string
	code      string
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryCache is a least-recently-used cache of compiled code whose entries
// also expire after a TTL. A background sweep drops expired entries until
// Stop is called.
type MemoryCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	recency    *list.List // front = most recently used
	maxEntries int

	sweepEvery time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemoryCache creates a cache holding at most maxEntries entries
// (0 = unbounded).
func NewMemoryCache(maxEntries int) *MemoryCache {
	c := &MemoryCache{
		items:      make(map[string]*list.Element),
		recency:    list.New(),
		maxEntries: maxEntries,
		sweepEvery: time.Minute,
		stop:       make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Get returns the cached code for key and marks it as recently used.
func (c *MemoryCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return "", false
	}
	e := el.Value.(*entry)
	if e.expired(time.Now()) {
		c.remove(el)
		return "", false
	}
	c.recency.MoveToFront(el)
	return e.code, true
}

// Set stores code under key for ttl. When the cache is full the least
// recently used entry is evicted; overwriting a key never evicts.
func (c *MemoryCache) Set(key, code string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(ttl)
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.code, e.expiresAt = code, expiresAt
		c.recency.MoveToFront(el)
		return
	}

	if c.maxEntries > 0 && c.recency.Len() >= c.maxEntries {
		c.remove(c.recency.Back())
	}
	c.items[key] = c.recency.PushFront(&entry{key: key, code: code, expiresAt: expiresAt})
}

// remove must be called with mu held.
func (c *MemoryCache) remove(el *list.Element) {
	if el == nil {
		return
	}
	c.recency.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}

// Invalidate drops key.
func (c *MemoryCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(c.items[key])
}

// InvalidateAll empties the cache.
func (c *MemoryCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.recency.Init()
}

func (c *MemoryCache) sweepLoop() {
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep(time.Now())
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.recency.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry).expired(now) {
			c.remove(el)
		}
		el = prev
	}
}

// Stop ends the background sweep. Safe to call more than once.
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Len returns the number of entries, expired ones included until swept.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}
