package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryCacheBasic(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Stop()

	if _, found := c.Get("test"); found {
		t.Error("expected cache miss for non-existent key")
	}

	c.Set("test", "var x = 1;", time.Minute)

	code, found := c.Get("test")
	if !found {
		t.Fatal("expected cache hit")
	}
	if code != "var x = 1;" {
		t.Errorf("unexpected code: %q", code)
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Stop()

	c.Set("short", "x", 50*time.Millisecond)

	if _, found := c.Get("short"); !found {
		t.Error("expected cache hit immediately after set")
	}

	time.Sleep(100 * time.Millisecond)

	if _, found := c.Get("short"); found {
		t.Error("expected cache miss after TTL expired")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be removed, have %d", c.Len())
	}
}

func TestMemoryCacheInvalidate(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Stop()

	c.Set("test1", "a", time.Minute)
	c.Set("test2", "b", time.Minute)

	c.Invalidate("test1")
	if _, found := c.Get("test1"); found {
		t.Error("expected test1 to be invalidated")
	}
	if _, found := c.Get("test2"); !found {
		t.Error("expected test2 to still exist")
	}

	c.InvalidateAll()
	if c.Len() != 0 {
		t.Errorf("expected empty cache, have %d entries", c.Len())
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryCache(2)
	defer c.Stop()

	c.Set("first", "1", time.Minute)
	c.Set("second", "2", time.Minute)
	c.Get("first") // second is now the least recently used
	c.Set("third", "3", time.Minute)

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, have %d", c.Len())
	}
	if _, found := c.Get("second"); found {
		t.Error("expected the least recently used entry to be evicted")
	}
	if _, found := c.Get("first"); !found {
		t.Error("expected a recently read entry to survive")
	}

	// overwriting an existing key never evicts
	c.Set("third", "3b", time.Minute)
	if code, found := c.Get("third"); !found || code != "3b" {
		t.Errorf("expected overwritten value, got %q (found=%v)", code, found)
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries after overwrite, have %d", c.Len())
	}
}

func TestMemoryCacheSweepDropsExpired(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Stop()

	c.Set("stale", "x", time.Millisecond)
	c.Set("fresh", "y", time.Hour)
	c.sweep(time.Now().Add(time.Second))

	if c.Len() != 1 {
		t.Fatalf("expected 1 entry after sweep, have %d", c.Len())
	}
	if _, found := c.Get("fresh"); !found {
		t.Error("expected fresh entry to survive the sweep")
	}
}

func TestMemoryCacheStopIdempotent(t *testing.T) {
	c := NewMemoryCache(0)
	c.Stop()
	c.Stop()
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c := NewMemoryCache(16)
	defer c.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (n+j)%32)
				c.Set(key, key, time.Minute)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 16 {
		t.Errorf("cache grew past its bound: %d", c.Len())
	}
}
