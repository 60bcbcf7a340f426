package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dheerajgaurgithub/earnbycode-judge/internal/common/cache"
)

func newTestCache(t *testing.T) cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("create cache failed: %v", err)
	}
	return c
}

func TestGetMissingKey(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	val, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("expected a missing key to be silent, got %v", err)
	}
	if val != "" {
		t.Fatalf("expected empty value, got %q", val)
	}
}

func TestSetGetDel(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	val, err := c.Get(ctx, "k")
	if err != nil || val != "v" {
		t.Fatalf("expected v, got %q (err %v)", val, err)
	}

	n, err := c.Exists(ctx, "k", "missing")
	if err != nil || n != 1 {
		t.Fatalf("expected one existing key, got %d (err %v)", n, err)
	}

	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if val, _ := c.Get(ctx, "k"); val != "" {
		t.Fatalf("expected key to be gone, got %q", val)
	}
}

func TestSetNX(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock", "a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first SetNX to win, got ok=%v err=%v", ok, err)
	}
	ok, err = c.SetNX(ctx, "lock", "b", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second SetNX to lose, got ok=%v err=%v", ok, err)
	}
	if val, _ := c.Get(ctx, "lock"); val != "a" {
		t.Fatalf("expected the first value to survive, got %q", val)
	}
}

func TestJitterTTL(t *testing.T) {
	t.Parallel()

	base := 10 * time.Minute
	for i := 0; i < 100; i++ {
		got := cache.JitterTTL(base)
		if got > base {
			t.Fatalf("jitter must never extend the ttl: %v", got)
		}
		if got < base-base/10 {
			t.Fatalf("jitter must shave at most 10%%: %v", got)
		}
	}

	if got := cache.JitterTTL(0); got != 0 {
		t.Fatalf("zero ttl must pass through, got %v", got)
	}
}
