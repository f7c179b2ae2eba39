package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/songzhibin97/qwork/pkg/store"
)

// newTestStore connects to REDIS_ADDR or skips the test
func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Redis is not available, set REDIS_ADDR")
	}

	rs, err := New(&store.Config{
		Type:        "redis",
		Address:     addr,
		DialTimeout: 2 * time.Second,
		KeyPrefix:   "qwork-test:",
	})
	if err != nil {
		t.Skipf("Failed to create Redis store: %v", err)
	}
	t.Cleanup(func() { rs.Close() })
	return rs
}

func TestRedisStore_IncrByAndExpire(t *testing.T) {
	rs := newTestStore(t)
	ctx := context.Background()

	key := "counter"
	defer rs.Delete(ctx, key)

	got, err := rs.IncrBy(ctx, key, 5)
	if err != nil {
		t.Fatalf("IncrBy() returned error: %v", err)
	}
	if got != 5 {
		t.Errorf("IncrBy() = %d, want 5", got)
	}

	if ttl, _ := rs.TTL(ctx, key); ttl != store.NoExpiry {
		t.Errorf("TTL() = %v, want NoExpiry", ttl)
	}
	if err := rs.Expire(ctx, key, time.Minute); err != nil {
		t.Fatalf("Expire() returned error: %v", err)
	}
	ttl, err := rs.TTL(ctx, key)
	if err != nil {
		t.Fatalf("TTL() returned error: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL() = %v, want within (0, 1m]", ttl)
	}
}

func TestRedisStore_SetGetDelete(t *testing.T) {
	rs := newTestStore(t)
	ctx := context.Background()

	key := "denylist:abc"
	if err := rs.Set(ctx, key, []byte("1"), time.Minute); err != nil {
		t.Fatalf("Set() returned error: %v", err)
	}
	v, err := rs.Get(ctx, key)
	if err != nil || string(v) != "1" {
		t.Errorf("Get() = %q, %v", v, err)
	}
	if ok, _ := rs.Exists(ctx, key); !ok {
		t.Error("Expected key to exist")
	}

	if err := rs.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() returned error: %v", err)
	}
	if v, err := rs.Get(ctx, key); err != nil || v != nil {
		t.Errorf("Get() after delete = %q, %v", v, err)
	}
	if ttl, _ := rs.TTL(ctx, key); ttl != store.Missing {
		t.Errorf("TTL() of missing key = %v, want Missing", ttl)
	}
}

func TestRedisStore_Health(t *testing.T) {
	rs := newTestStore(t)
	if h := rs.Health(context.Background()); h.Status != "healthy" {
		t.Errorf("Health() = %s: %s", h.Status, h.Message)
	}
}

func TestParseRedisInfo(t *testing.T) {
	info := "# Server\r\nredis_version:7.2.4\r\nuptime_in_seconds:42\r\n\r\n# Clients\r\nconnected_clients:1"
	got := parseRedisInfo(info)

	want := map[string]string{
		"redis_version":     "7.2.4",
		"uptime_in_seconds": "42",
		"connected_clients": "1",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("parseRedisInfo()[%s] = %q, want %q", k, got[k], v)
		}
	}
	if len(got) != len(want) {
		t.Errorf("parseRedisInfo() returned %d keys, want %d", len(got), len(want))
	}
}
