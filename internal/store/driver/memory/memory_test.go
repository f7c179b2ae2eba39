package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/songzhibin97/qwork/pkg/store"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	ms := New(&store.Config{KeyPrefix: "test:"})
	ms.now = clock.Now
	t.Cleanup(func() { ms.Close() })
	return ms, clock
}

func TestMemoryStore_IncrBy(t *testing.T) {
	ms, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		delta int64
		want  int64
	}{
		{5, 5},
		{3, 8},
		{-2, 6},
	}
	for _, tt := range tests {
		got, err := ms.IncrBy(ctx, "counter", tt.delta)
		if err != nil {
			t.Fatalf("IncrBy() returned error: %v", err)
		}
		if got != tt.want {
			t.Errorf("IncrBy(%d) = %d, want %d", tt.delta, got, tt.want)
		}
	}

	if err := ms.Set(ctx, "text", []byte("abc"), 0); err != nil {
		t.Fatalf("Set() returned error: %v", err)
	}
	if _, err := ms.IncrBy(ctx, "text", 1); err == nil {
		t.Error("Expected error when incrementing non-numeric value")
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ms, clock := newTestStore(t)
	ctx := context.Background()

	if err := ms.Set(ctx, "token", []byte("1"), time.Minute); err != nil {
		t.Fatalf("Set() returned error: %v", err)
	}
	ttl, err := ms.TTL(ctx, "token")
	if err != nil || ttl != time.Minute {
		t.Errorf("TTL() = %v, %v, want 1m", ttl, err)
	}

	clock.Advance(59 * time.Second)
	if ok, _ := ms.Exists(ctx, "token"); !ok {
		t.Error("Expected key to exist before expiry")
	}

	clock.Advance(time.Second)
	if ok, _ := ms.Exists(ctx, "token"); ok {
		t.Error("Expected key to expire")
	}
	if v, _ := ms.Get(ctx, "token"); v != nil {
		t.Errorf("Get() = %q after expiry, want nil", v)
	}
	if ttl, _ := ms.TTL(ctx, "token"); ttl != store.Missing {
		t.Errorf("TTL() = %v after expiry, want Missing", ttl)
	}
}

func TestMemoryStore_ExpireCounter(t *testing.T) {
	ms, clock := newTestStore(t)
	ctx := context.Background()

	if _, err := ms.IncrBy(ctx, "window", 1); err != nil {
		t.Fatalf("IncrBy() returned error: %v", err)
	}
	if ttl, _ := ms.TTL(ctx, "window"); ttl != store.NoExpiry {
		t.Errorf("TTL() = %v, want NoExpiry", ttl)
	}
	if err := ms.Expire(ctx, "window", 10*time.Second); err != nil {
		t.Fatalf("Expire() returned error: %v", err)
	}

	clock.Advance(10 * time.Second)
	got, err := ms.IncrBy(ctx, "window", 1)
	if err != nil {
		t.Fatalf("IncrBy() returned error: %v", err)
	}
	if got != 1 {
		t.Errorf("IncrBy() after expiry = %d, want 1", got)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ms, _ := newTestStore(t)
	ctx := context.Background()

	value := []byte("abc")
	if err := ms.Set(ctx, "k", value, 0); err != nil {
		t.Fatalf("Set() returned error: %v", err)
	}
	value[0] = 'x'

	got, _ := ms.Get(ctx, "k")
	got[1] = 'y'
	again, _ := ms.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("Get() = %q, want abc", again)
	}
}

func TestMemoryStore_ConcurrentIncr(t *testing.T) {
	ms, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ms.IncrBy(ctx, "n", 1); err != nil {
				t.Errorf("IncrBy() returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	v, _ := ms.Get(ctx, "n")
	if string(v) != "50" {
		t.Errorf("counter = %s, want 50", v)
	}
}

func TestMemoryStore_CloseAndHealth(t *testing.T) {
	ms := New(nil)
	if h := ms.Health(context.Background()); h.Status != "healthy" {
		t.Errorf("Health() = %s, want healthy", h.Status)
	}
	if err := ms.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}
	if err := ms.Close(); err != nil {
		t.Errorf("second Close() returned error: %v", err)
	}
	if h := ms.Health(context.Background()); h.Status != "unhealthy" {
		t.Errorf("Health() after close = %s, want unhealthy", h.Status)
	}
}
