package cache

import (
	"reflect"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

// TestLRUCacheEviction tests size-based eviction
func TestLRUCacheEviction(t *testing.T) {
	cache := NewLRUCache[string](3, time.Hour)

	cache.Set("key1", "value1")
	cache.Set("key2", "value2")
	cache.Set("key3", "value3")
	cache.Set("key4", "value4") // Should evict key1

	if _, found := cache.Get("key1"); found {
		t.Error("key1 should have been evicted")
	}
	for _, key := range []string{"key2", "key3", "key4"} {
		if _, found := cache.Get(key); !found {
			t.Errorf("%s should still exist", key)
		}
	}
}

// TestLRUCacheTTLExpiration tests time-based expiration
func TestLRUCacheTTLExpiration(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewLRUCache[string](100, 50*time.Millisecond).WithClock(clock.Now)

	cache.Set("key1", "value1")
	if _, found := cache.Get("key1"); !found {
		t.Error("key1 should exist immediately")
	}

	clock.Advance(60 * time.Millisecond)
	if _, found := cache.Get("key1"); found {
		t.Error("key1 should have expired")
	}
}

func TestLRUCacheZeroTTLNeverExpires(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewLRUCache[int](10, 0).WithClock(clock.Now)

	cache.Set("a", 1)
	clock.Advance(24 * time.Hour)
	if v, found := cache.Get("a"); !found || v != 1 {
		t.Fatalf("expected a=1 without ttl, got %v found=%v", v, found)
	}
	if n := cache.CleanExpired(); n != 0 {
		t.Fatalf("expected nothing to clean, got %d", n)
	}
}

func TestLRUCacheCleanExpired(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewLRUCache[int](10, time.Minute).WithClock(clock.Now)

	cache.Set("old1", 1)
	cache.Set("old2", 2)
	clock.Advance(45 * time.Second)
	cache.Set("fresh", 3)
	clock.Advance(30 * time.Second)

	if n := cache.CleanExpired(); n != 2 {
		t.Fatalf("expected 2 expired entries, got %d", n)
	}
	if cache.Size() != 1 {
		t.Fatalf("expected 1 entry left, got %d", cache.Size())
	}
}

func TestLRUCacheDeleteFuncAndPurge(t *testing.T) {
	cache := NewLRUCache[int](10, time.Hour)
	for i, key := range []string{"2024-01", "2024-02", "2024-03", "2024-04"} {
		cache.Set(key, i)
	}

	removed := cache.DeleteFunc(func(key string) bool { return key >= "2024-03" })
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	want := []string{"2024-02", "2024-01"}
	if got := cache.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected keys %v, got %v", want, got)
	}

	cache.Purge()
	if cache.Size() != 0 {
		t.Fatalf("expected empty cache after purge, got %d", cache.Size())
	}
	cache.Set("again", 1)
	if keys := cache.Keys(); len(keys) != 1 || keys[0] != "again" {
		t.Fatalf("cache must be usable after purge")
	}
}

func TestLRUCacheGetRefreshesRecency(t *testing.T) {
	cache := NewLRUCache[int](2, time.Hour)
	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Get("a")
	cache.Set("c", 3) // evicts b, the least recently used

	if _, found := cache.Get("b"); found {
		t.Error("b should have been evicted")
	}
	if _, found := cache.Get("a"); !found {
		t.Error("a should still exist")
	}
}

func TestManagerCleanup(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewLRUCache[int](10, time.Second).WithClock(clock.Now)
	cache.Set("a", 1)

	m := NewManager(nil)
	m.Register(cache)
	clock.Advance(2 * time.Second)

	if n := m.CleanNow(); n != 1 {
		t.Fatalf("expected 1 cleaned entry, got %d", n)
	}

	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := NewManager(nil)
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a running cleanup loop")
	}
}
