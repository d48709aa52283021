package cache

import (
	"context"
	"testing"
	"time"
)

func TestBigCacheClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	c, err := NewBigCache(ctx, BigCacheConfig{Shards: 4, LifeWindow: time.Hour})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer c.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	key := AlertKey("abc")

	if _, held, err := c.Holder(ctx, key); err != nil || held {
		t.Fatalf("expected free key, held=%v err=%v", held, err)
	}
	if ok, err := c.Claim(ctx, key, "rec-1", time.Minute); err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	if ok, err := c.Claim(ctx, key, "rec-2", time.Minute); err != nil || ok {
		t.Fatalf("second claim should be refused: ok=%v err=%v", ok, err)
	}
	if holder, held, _ := c.Holder(ctx, key); !held || holder != "rec-1" {
		t.Fatalf("expected rec-1 to hold the claim, got %q held=%v", holder, held)
	}

	now = now.Add(time.Minute)
	if _, held, _ := c.Holder(ctx, key); held {
		t.Fatalf("expected claim to expire")
	}
	if ok, err := c.Claim(ctx, key, "rec-3", time.Minute); err != nil || !ok {
		t.Fatalf("claim after expiry: ok=%v err=%v", ok, err)
	}

	if err := c.Release(ctx, key); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := c.Claim(ctx, key, "rec-4", time.Minute); !ok {
		t.Fatalf("expected released key to be claimable")
	}
	if err := c.Release(ctx, AlertKey("missing")); err != nil {
		t.Fatalf("release of a free key: %v", err)
	}
}

func TestNoopClaimsNeverSuppress(t *testing.T) {
	var c Claims = NoopClaims{}
	for i := 0; i < 2; i++ {
		if ok, err := c.Claim(context.Background(), AlertKey("k"), "rec", time.Second); !ok || err != nil {
			t.Fatalf("noop claim %d: ok=%v err=%v", i, ok, err)
		}
	}
	if _, held, _ := c.Holder(context.Background(), AlertKey("k")); held {
		t.Fatalf("noop store must hold nothing")
	}
}
