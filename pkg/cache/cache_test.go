package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestMemoryCacheJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	if err := c.Set(ctx, "k", []string{"AAA", "BBB"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got []string
	if err := c.Get(ctx, "k", &got); err != nil || len(got) != 2 || got[1] != "BBB" {
		t.Fatalf("get = %v err = %v", got, err)
	}
	var s string
	_ = c.Set(ctx, "s", "plain", time.Minute)
	if err := c.Get(ctx, "s", &s); err != nil || s != "plain" {
		t.Fatalf("string get = %q err = %v", s, err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(WithMemoryClock(clk.now))
	_ = c.Set(ctx, "k", 1, time.Minute)

	clk.t = clk.t.Add(time.Minute)
	var v int
	if err := c.Get(ctx, "k", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after ttl, got %v", err)
	}
	if ok, _ := c.Exists(ctx, "k"); ok {
		t.Fatalf("expired key reported as existing")
	}
}

func TestMemoryCacheTryLock(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(WithMemoryClock(clk.now))

	if ok, _ := c.TryLock(ctx, "run:2024-01-02", time.Hour); !ok {
		t.Fatalf("first lock should succeed")
	}
	if ok, _ := c.TryLock(ctx, "run:2024-01-02", time.Hour); ok {
		t.Fatalf("second lock should fail")
	}
	clk.t = clk.t.Add(2 * time.Hour)
	if ok, _ := c.TryLock(ctx, "run:2024-01-02", time.Hour); !ok {
		t.Fatalf("lock should be free after ttl")
	}
	_ = c.Unlock(ctx, "run:2024-01-02")
	if ok, _ := c.TryLock(ctx, "run:2024-01-02", time.Hour); !ok {
		t.Fatalf("lock should be free after unlock")
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryClock(clk.now))
	_ = c.Set(ctx, "a", 1, time.Hour)
	clk.t = clk.t.Add(time.Second)
	_ = c.Set(ctx, "b", 2, time.Hour)
	clk.t = clk.t.Add(time.Second)
	var v int
	_ = c.Get(ctx, "a", &v)
	clk.t = clk.t.Add(time.Second)
	_ = c.Set(ctx, "c", 3, time.Hour)

	if ok, _ := c.Exists(ctx, "b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if ok, _ := c.Exists(ctx, "a", "c"); !ok {
		t.Fatalf("a and c should remain")
	}
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"AAA"}, nil
	}
	for i := 0; i < 3; i++ {
		v, err := GetOrLoad(ctx, c, GenerateKey("universe", "static"), time.Hour, load)
		if err != nil || len(v) != 1 {
			t.Fatalf("v = %v err = %v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("loader called %d times", calls)
	}
	if GenerateKey("run", "2024-01-02") != "run:2024-01-02" {
		t.Fatalf("key format")
	}
}

func TestRedisOptionsKeepDefaultsOnZero(t *testing.T) {
	cfg := &RedisConfig{Addr: "localhost:6379", PoolSize: 10, MinIdleConns: 2, PoolTimeout: time.Second}
	for _, opt := range []RedisOption{
		WithRedisAddr("", 0),
		WithRedisPool(0, 0, 0),
		WithRedisAuth("pw", 3),
	} {
		opt(cfg)
	}
	if cfg.Addr != "localhost:6379" || cfg.PoolSize != 10 || cfg.MinIdleConns != 2 || cfg.PoolTimeout != time.Second {
		t.Fatalf("defaults overwritten: %+v", cfg)
	}
	if cfg.Password != "pw" || cfg.DB != 3 {
		t.Fatalf("auth = %q/%d", cfg.Password, cfg.DB)
	}
	WithRedisAddr("::1", 6380)(cfg)
	if cfg.Addr != "[::1]:6380" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
}
