package permit

import (
	"testing"
	"time"
)

func TestMemoryGrantCache(t *testing.T) {
	c := NewMemoryGrantCache(time.Minute)

	if _, ok := c.Get("alice"); ok {
		t.Fatal("empty cache must miss")
	}

	grants := []Grant{{Pattern: "posts.*"}}
	c.Set("alice", grants)
	got, ok := c.Get("alice")
	if !ok || len(got) != 1 || got[0].Pattern != "posts.*" {
		t.Fatalf("cache hit wrong: %v %v", got, ok)
	}

	c.Invalidate("alice")
	if _, ok := c.Get("alice"); ok {
		t.Fatal("invalidated entry must miss")
	}

	c.Set("alice", grants)
	c.Set("bob", grants)
	c.Flush()
	if _, ok := c.Get("alice"); ok {
		t.Fatal("flushed cache must miss")
	}
	if _, ok := c.Get("bob"); ok {
		t.Fatal("flushed cache must miss")
	}
}

func TestMemoryGrantCacheTTL(t *testing.T) {
	c := NewMemoryGrantCache(20 * time.Millisecond)
	c.Set("alice", []Grant{{Pattern: "posts.*"}})
	if _, ok := c.Get("alice"); !ok {
		t.Fatal("fresh entry must hit")
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("alice"); ok {
		t.Fatal("expired entry must miss")
	}
}

func TestRistrettoGrantCache(t *testing.T) {
	c, err := NewRistrettoGrantCache(0, 0, time.Minute)
	if err != nil {
		t.Fatalf("new ristretto cache: %v", err)
	}
	defer c.Flush()

	grants := []Grant{{Pattern: "posts.*"}, {Pattern: "billing.view", Effect: EffectDeny}}
	c.Set("alice", grants)
	got, ok := c.Get("alice")
	if !ok || len(got) != 2 {
		t.Fatalf("cache hit wrong: %v %v", got, ok)
	}

	c.Invalidate("alice")
	if _, ok := c.Get("alice"); ok {
		t.Fatal("invalidated entry must miss")
	}
}
