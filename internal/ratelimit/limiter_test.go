package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/songzhibin97/qwork/internal/store/driver/memory"
	"github.com/songzhibin97/qwork/pkg/log"
	"github.com/songzhibin97/qwork/pkg/store"
)

func newTestLimiter(t *testing.T, max int) (*Limiter, *time.Time) {
	t.Helper()
	s := memory.New(nil)
	t.Cleanup(func() { s.Close() })

	now := time.Unix(1700000000, 0)
	l := NewLimiter(s, &Config{MaxRequests: max, WindowSize: time.Minute, KeyPrefix: "rl:"}, log.NewNop())
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_Allow(t *testing.T) {
	l, now := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		r := l.Allow(ctx, "1.2.3.4")
		if !r.Allowed {
			t.Fatalf("request %d rejected", i)
		}
		if r.Remaining != 3-i {
			t.Errorf("request %d: Remaining = %d, want %d", i, r.Remaining, 3-i)
		}
	}

	r := l.Allow(ctx, "1.2.3.4")
	if r.Allowed {
		t.Error("Expected fourth request to be rejected")
	}
	if r.RetryAfter <= 0 || r.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v", r.RetryAfter)
	}

	// Another identifier has its own window
	if r := l.Allow(ctx, "5.6.7.8"); !r.Allowed {
		t.Error("Expected other identifier to be allowed")
	}

	// The next window starts fresh
	*now = now.Add(time.Minute)
	if r := l.Allow(ctx, "1.2.3.4"); !r.Allowed || r.Remaining != 2 {
		t.Errorf("Expected fresh window, got %+v", r)
	}
}

// failingStore fails every counter operation
type failingStore struct {
	store.AtomicStore
}

func (failingStore) IncrBy(ctx context.Context, key string, value int64) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestLimiter_FailsOpen(t *testing.T) {
	l := NewLimiter(failingStore{}, &Config{MaxRequests: 1, WindowSize: time.Minute}, nil)
	for i := 0; i < 3; i++ {
		if r := l.Allow(context.Background(), "ip"); !r.Allowed {
			t.Fatal("Expected limiter to fail open")
		}
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, _ := newTestLimiter(t, 2)

	router := gin.New()
	router.POST("/api/auth/login", Middleware(l), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := []int{}
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		last = w
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: status = %d, want %d", i, codes[i], want[i])
		}
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header on rejection")
	}
	if last.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %s, want 0", last.Header().Get("X-RateLimit-Remaining"))
	}
}
