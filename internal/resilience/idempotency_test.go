package resilience

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestIdempotencyKey_Deterministic(t *testing.T) {
	a, err := IdempotencyKey("ops@example.com", "expense.create", map[string]any{
		"amount": 10.5, "description": "Coffee", "date": "2026-02-01",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Same logical arguments, constructed in a different order.
	b, err := IdempotencyKey("ops@example.com", "expense.create", map[string]any{
		"date": "2026-02-01", "description": "Coffee", "amount": 10.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("expected identical keys, got %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestIdempotencyKey_DistinguishesInputs(t *testing.T) {
	base := map[string]any{"amount": 10.5}
	k1, _ := IdempotencyKey("alice", "expense.create", base)
	k2, _ := IdempotencyKey("bob", "expense.create", base)
	k3, _ := IdempotencyKey("alice", "expense.delete", base)
	k4, _ := IdempotencyKey("alice", "expense.create", map[string]any{"amount": 10.51})

	if k1 == k2 {
		t.Error("expected different identities to produce different keys")
	}
	if k1 == k3 {
		t.Error("expected different operations to produce different keys")
	}
	if k1 == k4 {
		t.Error("expected different args to produce different keys")
	}
}

func TestMemoryCache_StoreAndCheck(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if _, ok, err := c.Check(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	result := json.RawMessage(`{"id":"rec-1"}`)
	if err := c.Store(ctx, "k1", result, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, err := c.Check(ctx, "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != string(result) {
		t.Errorf("expected %s, got %s", result, got)
	}
}

func TestMemoryCache_ExpiryIsLazy(t *testing.T) {
	now := time.Now()
	c := NewMemoryCache()
	c.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Store(ctx, "k1", json.RawMessage(`1`), time.Minute)

	// Still valid just before the deadline.
	c.nowFunc = func() time.Time { return now.Add(59 * time.Second) }
	if _, ok, _ := c.Check(ctx, "k1"); !ok {
		t.Fatal("expected hit before expiry")
	}

	// Expired entries read as misses and are evicted on access.
	c.nowFunc = func() time.Time { return now.Add(61 * time.Second) }
	if _, ok, _ := c.Check(ctx, "k1"); ok {
		t.Fatal("expected miss after expiry")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry evicted, %d entries remain", c.Len())
	}
}

func TestMemoryCache_StoreDefaultTTL(t *testing.T) {
	now := time.Now()
	c := NewMemoryCache()
	c.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Store(ctx, "k1", json.RawMessage(`1`), 0)

	c.nowFunc = func() time.Time { return now.Add(23 * time.Hour) }
	if _, ok, _ := c.Check(ctx, "k1"); !ok {
		t.Error("expected zero TTL to fall back to the 24h default")
	}
}

func TestMemoryCache_Overwrite(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_ = c.Store(ctx, "k1", json.RawMessage(`"old"`), time.Minute)
	_ = c.Store(ctx, "k1", json.RawMessage(`"new"`), time.Minute)

	got, ok, _ := c.Check(ctx, "k1")
	if !ok || string(got) != `"new"` {
		t.Errorf("expected overwrite to win, got ok=%v %s", ok, got)
	}
}

func TestMemoryCache_PurgeExpired(t *testing.T) {
	now := time.Now()
	c := NewMemoryCache()
	c.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Store(ctx, "short", json.RawMessage(`1`), time.Second)
	_ = c.Store(ctx, "long", json.RawMessage(`2`), time.Hour)

	c.nowFunc = func() time.Time { return now.Add(time.Minute) }
	if dropped := c.PurgeExpired(); dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", dropped)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 live entry, got %d", c.Len())
	}
}
