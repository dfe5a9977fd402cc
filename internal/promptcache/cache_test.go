package promptcache

import (
	"testing"
	"time"
)

func newTestCache(t *testing.T) (*Cache, *time.Time) {
	t.Helper()
	c, err := New(8, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	return c, &clock
}

func TestGetPut(t *testing.T) {
	c, _ := newTestCache(t)
	c.Put("gen_python", "abc123", "prompt content", 0)

	got, ok := c.Get("gen_python", "abc123")
	if !ok || got != "prompt content" {
		t.Fatalf("Get() = %q, %v, want prompt content, true", got, ok)
	}
	if _, ok := c.Get("gen_rust", "abc123"); ok {
		t.Error("Get() hit for a different task")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Stats() = %+v, want 1 hit, 1 miss", stats)
	}
	if stats.HitRatePct != 50.0 {
		t.Errorf("HitRatePct = %v, want 50", stats.HitRatePct)
	}
}

func TestTTLExpiry(t *testing.T) {
	c, clock := newTestCache(t)
	c.Put("gen_python", "abc123", "prompt", 30*time.Second)

	*clock = clock.Add(31 * time.Second)
	if _, ok := c.Get("gen_python", "abc123"); ok {
		t.Fatal("Get() hit after TTL expiry")
	}
	if c.Stats().Entries != 0 {
		t.Error("expired entry not dropped")
	}
}

func TestSchemaInvalidation(t *testing.T) {
	c, _ := newTestCache(t)
	c.Put("gen_python", "hash_a", "p1", 0)
	c.Put("gen_rust", "hash_a", "p2", 0)
	c.Put("gen_python", "hash_b", "p3", 0)

	if removed := c.InvalidateSchema("hash_a"); removed != 2 {
		t.Fatalf("InvalidateSchema() removed %d, want 2", removed)
	}
	if _, ok := c.Get("gen_python", "hash_a"); ok {
		t.Error("invalidated entry still served")
	}
	if _, ok := c.Get("gen_python", "hash_b"); !ok {
		t.Error("unrelated schema entry was invalidated")
	}
}

func TestLRUEviction(t *testing.T) {
	c, err := New(2, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	c.Put("a", "h1", "p1", 0)
	c.Put("b", "h2", "p2", 0)
	c.Put("c", "h3", "p3", 0)

	if _, ok := c.Get("a", "h1"); ok {
		t.Error("oldest entry survived past capacity")
	}
	if _, ok := c.Get("c", "h3"); !ok {
		t.Error("newest entry evicted")
	}
}

func TestHitRateEmpty(t *testing.T) {
	c, _ := newTestCache(t)
	if got := c.HitRate(); got != 0.0 {
		t.Fatalf("HitRate() = %v, want 0 with no lookups", got)
	}
}
