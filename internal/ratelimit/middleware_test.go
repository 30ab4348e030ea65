package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	handler := Handler{
		Limiter: Limiter{Client: client, Prefix: "ratelimit:"},
		Config:  Config{Scope: "compare-test", Key: ByClientIP("compare"), Window: time.Minute, Max: 1},
	}
	counted := handler.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/compare", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second request, got %d", rr2.Code)
	}
	if rr2.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("unexpected limit header: %q", rr2.Header().Get("X-RateLimit-Limit"))
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if !strings.Contains(rr2.Body.String(), "RATE_LIMITED") {
		t.Fatalf("unexpected body: %s", rr2.Body.String())
	}
	if !mr.Exists("ratelimit:compare:203.0.113.7") {
		t.Fatal("expected key scoped by client ip")
	}

	other := httptest.NewRequest(http.MethodPost, "/api/v1/compare", nil)
	other.Header.Set("X-Forwarded-For", "198.51.100.2")
	rr3 := httptest.NewRecorder()
	counted.ServeHTTP(rr3, other)
	if rr3.Code != http.StatusOK {
		t.Fatalf("other clients keep their own budget, got %d", rr3.Code)
	}
	if got := testutil.ToFloat64(Decisions.WithLabelValues("compare-test", "limited")); got != 1 {
		t.Fatalf("limited decisions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(Decisions.WithLabelValues("compare-test", "allowed")); got != 2 {
		t.Fatalf("allowed decisions = %v, want 2", got)
	}
}

func TestHandlerMiddlewareFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer func() { _ = client.Close() }()
	handler := Handler{
		Limiter: Limiter{Client: client, Prefix: "ratelimit:"},
		Config:  Config{Scope: "fail-open-test", Key: func(*http.Request) string { return "err" }, Window: time.Second, Max: 1},
	}

	rr := httptest.NewRecorder()
	handler.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected handler to proceed on error, got %d", rr.Code)
	}
	if rr.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatal("no limit headers expected when the limiter is down")
	}
	if got := testutil.ToFloat64(Decisions.WithLabelValues("fail-open-test", "bypassed")); got != 1 {
		t.Fatalf("bypassed decisions = %v, want 1", got)
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	if got := retryAfter(time.Now().Add(1500 * time.Millisecond)); got != 2 {
		t.Fatalf("retryAfter = %d, want 2", got)
	}
	if got := retryAfter(time.Now().Add(-time.Second)); got != 1 {
		t.Fatalf("past reset should still ask for 1s, got %d", got)
	}
}

func TestGlobalLimiter(t *testing.T) {
	mw, err := Global(memory.NewStore(), "2-M")
	if err != nil {
		t.Fatalf("global: %v", err)
	}
	h := mw(okHandler())
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stores", nil)
		req.RemoteAddr = "192.0.2.10:5555"
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}

	if _, err := Global(memory.NewStore(), "lots"); err == nil {
		t.Fatal("expected malformed rate to fail")
	}
}
