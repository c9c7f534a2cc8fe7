//go:build load

// Package load contains load tests that are excluded from regular CI runs.
// Run with: go test -tags load -count=1 -timeout 60s ./tests/load/
package load

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/loomhq/loom/internal/config"
	"github.com/loomhq/loom/internal/middleware"
)

func newLimiter(rate float64, burst int) *middleware.RateLimiter {
	return middleware.NewRateLimiter(config.Rate{RequestsPerSecond: rate, Burst: burst})
}

func limitedHandler(rl *middleware.RateLimiter) http.Handler {
	return rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

// fire sends count requests from ip through handler and tallies the outcomes.
func fire(handler http.Handler, ip string, count int) (ok, limited int) {
	for range count {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces", http.NoBody)
		req.RemoteAddr = ip
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		switch rec.Code {
		case http.StatusOK:
			ok++
		case http.StatusTooManyRequests:
			limited++
		}
	}
	return ok, limited
}

// TestSustainedLoadSheds hammers one IP from many goroutines. With the
// default-ish rate of 10/s and a burst of 10, a near-instant volley of 1000
// requests must be overwhelmingly rejected.
func TestSustainedLoadSheds(t *testing.T) {
	handler := limitedHandler(newLimiter(10, 10))

	const goroutines = 10
	var (
		mu          sync.Mutex
		ok, limited int
		wg          sync.WaitGroup
	)
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			o, l := fire(handler, "10.0.0.1", 100)
			mu.Lock()
			ok += o
			limited += l
			mu.Unlock()
		}()
	}
	wg.Wait()

	t.Logf("ok=%d limited=%d", ok, limited)
	if limited == 0 {
		t.Fatal("expected the limiter to shed load")
	}
	if pct := float64(limited) / float64(ok+limited) * 100; pct < 80 {
		t.Errorf("expected >80%% shed under sustained load, got %.1f%%", pct)
	}
}

// TestBurstThenReject verifies the configured burst is absorbed in full, the
// next request gets a 429 with Retry-After, and successes carry the
// remaining-token header.
func TestBurstThenReject(t *testing.T) {
	const burst = 25
	handler := limitedHandler(newLimiter(1, burst))

	for i := range burst {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces", http.NoBody)
		req.RemoteAddr = "10.0.0.1"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("burst request %d: expected 200, got %d", i, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Remaining") == "" {
			t.Fatalf("burst request %d: missing X-RateLimit-Remaining", i)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces", http.NoBody)
	req.RemoteAddr = "10.0.0.1"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("request burst+1: expected 429, got %d", rec.Code)
	}
	if retry := rec.Header().Get("Retry-After"); retry == "" {
		t.Fatal("expected Retry-After on the 429")
	} else if _, err := strconv.Atoi(retry); err != nil {
		t.Fatalf("Retry-After must be integer seconds, got %q", retry)
	}
}

// TestBucketsAreIndependentPerIP exhausts one address and checks a second
// address still has its full burst, and that exactly two buckets exist.
func TestBucketsAreIndependentPerIP(t *testing.T) {
	const burst = 5
	rl := newLimiter(burst, burst)
	handler := limitedHandler(rl)

	ok1, lim1 := fire(handler, "10.0.0.1", burst+3)
	if ok1 != burst || lim1 != 3 {
		t.Errorf("first ip: ok=%d limited=%d, want %d/3", ok1, lim1, burst)
	}

	ok2, lim2 := fire(handler, "10.0.0.2", burst)
	if ok2 != burst || lim2 != 0 {
		t.Errorf("second ip must have its own bucket: ok=%d limited=%d", ok2, lim2)
	}

	if rl.Len() != 2 {
		t.Errorf("expected 2 tracked buckets, got %d", rl.Len())
	}
}

// TestCleanupEvictsIdleBuckets fills the limiter with many one-shot clients
// and verifies the background cleanup drops them all once idle.
func TestCleanupEvictsIdleBuckets(t *testing.T) {
	const clients = 500
	rl := newLimiter(10, 10)
	handler := limitedHandler(rl)

	for i := range clients {
		fire(handler, fmt.Sprintf("10.8.%d.%d", i/256, i%256), 1)
	}
	if rl.Len() != clients {
		t.Fatalf("expected %d buckets, got %d", clients, rl.Len())
	}

	time.Sleep(10 * time.Millisecond) // let every bucket go idle

	stop := rl.StartCleanup(5*time.Millisecond, time.Millisecond)
	defer stop()
	time.Sleep(50 * time.Millisecond)

	if rl.Len() != 0 {
		t.Errorf("expected the cleanup to evict all buckets, got %d", rl.Len())
	}
}
