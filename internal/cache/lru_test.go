package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(sliding bool) (*LRUCache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](2, time.Minute)
	c.sliding = sliding
	c.now = clock.now
	return c, clock
}

func TestLRUCache_Expiry(t *testing.T) {
	c, clock := newTestCache(false)
	c.Set("a", "1")

	clock.advance(30 * time.Second)
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v before expiry", v, ok)
	}

	clock.advance(31 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) should miss after ttl")
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestLRUCache_Sliding(t *testing.T) {
	c, clock := newTestCache(true)
	c.Set("a", "1")

	for i := 0; i < 3; i++ {
		clock.advance(50 * time.Second)
		if _, ok := c.Get("a"); !ok {
			t.Fatalf("read %d: entry expired despite activity", i)
		}
	}
	clock.advance(61 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("entry should expire after an idle ttl")
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(false)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should survive as recently used")
	}
}

func TestLRUCache_Update(t *testing.T) {
	c, clock := newTestCache(false)
	c.Set("a", "x")

	if !c.Update("a", func(s string) string { return s + "y" }) {
		t.Fatal("Update(a) = false")
	}
	if v, _ := c.Get("a"); v != "xy" {
		t.Errorf("Get(a) = %q, want xy", v)
	}
	if c.Update("missing", func(s string) string { return s }) {
		t.Error("Update(missing) = true")
	}

	clock.advance(2 * time.Minute)
	called := false
	if c.Update("a", func(s string) string { called = true; return s }) || called {
		t.Error("Update must not touch an expired entry")
	}
}

func TestManager_Sweep(t *testing.T) {
	c, clock := newTestCache(false)
	c.Set("a", "1")
	c.Set("b", "2")
	clock.advance(2 * time.Minute)

	m := NewManager()
	m.Register(c)
	if n := m.Sweep(); n != 2 {
		t.Errorf("Sweep() = %d, want 2", n)
	}

	m.StartCleanup(time.Hour)
	m.Stop()
}
