package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// =============================================================================
// Generators for property-based testing
// =============================================================================

// clientKeyGenerator generates client keys shaped like IP addresses
func clientKeyGenerator() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringMatching(`10\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}`),
		rapid.StringMatching(`fd00::[0-9a-f]{1,4}`),
	)
}

// =============================================================================
// Property: Requests within limit succeed
// =============================================================================

func testRateLimiter_RequestsWithinLimit(t *rapid.T) {
	config := Config{
		RPS:             100.0, // High enough to not hit rate limit during test
		Burst:           rapid.IntRange(1, 200).Draw(t, "burst"),
		CleanupInterval: time.Hour,
	}

	rl := NewRateLimiter(config)
	defer rl.Stop()

	key := clientKeyGenerator().Draw(t, "key")
	numRequests := rapid.IntRange(1, config.Burst).Draw(t, "numRequests")

	// Property: All requests within burst limit should succeed
	for i := 0; i < numRequests; i++ {
		if !rl.Allow(key) {
			t.Fatalf("Request %d of %d should have been allowed (within burst of %d)", i+1, numRequests, config.Burst)
		}
	}
}

func TestRateLimiter_RequestsWithinLimit(t *testing.T) {
	rapid.Check(t, testRateLimiter_RequestsWithinLimit)
}

func FuzzRateLimiter_RequestsWithinLimit(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_RequestsWithinLimit))
}

// =============================================================================
// Property: Requests beyond the burst are blocked
// =============================================================================

func testRateLimiter_ExceedingLimitBlocked(t *rapid.T) {
	config := Config{
		RPS:             0.001, // Very low - almost no refill
		Burst:           rapid.IntRange(1, 20).Draw(t, "burst"),
		CleanupInterval: time.Hour,
	}

	rl := NewRateLimiter(config)
	defer rl.Stop()

	key := clientKeyGenerator().Draw(t, "key")
	for i := 0; i < config.Burst; i++ {
		rl.Allow(key)
	}

	if rl.Allow(key) {
		t.Fatalf("Request beyond burst limit of %d should have been blocked", config.Burst)
	}
}

func TestRateLimiter_ExceedingLimitBlocked(t *testing.T) {
	rapid.Check(t, testRateLimiter_ExceedingLimitBlocked)
}

func FuzzRateLimiter_ExceedingLimitBlocked(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_ExceedingLimitBlocked))
}

// =============================================================================
// Property: Different clients have independent limits
// =============================================================================

func testRateLimiter_ClientIndependence(t *rapid.T) {
	config := Config{RPS: 0.001, Burst: 3, CleanupInterval: time.Hour}
	rl := NewRateLimiter(config)
	defer rl.Stop()

	a := clientKeyGenerator().Draw(t, "a")
	b := clientKeyGenerator().Filter(func(s string) bool { return s != a }).Draw(t, "b")

	for i := 0; i < config.Burst; i++ {
		rl.Allow(a)
	}
	if rl.Allow(a) {
		t.Fatalf("client %q should be exhausted", a)
	}
	if !rl.Allow(b) {
		t.Fatalf("client %q must not be affected by %q", b, a)
	}
}

func TestRateLimiter_ClientIndependence(t *testing.T) {
	rapid.Check(t, testRateLimiter_ClientIndependence)
}

// =============================================================================
// Cleanup
// =============================================================================

func TestRateLimiter_IdleLimiterCleanup(t *testing.T) {
	cleanupInterval := 10 * time.Millisecond
	rl := NewRateLimiter(Config{RPS: 100, Burst: 200, CleanupInterval: cleanupInterval})
	defer rl.Stop()

	for _, key := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		rl.Allow(key)
	}
	require.Equal(t, 3, rl.Len())

	time.Sleep(cleanupInterval + 5*time.Millisecond)
	rl.Cleanup()
	require.Equal(t, 0, rl.Len())
}

func TestRateLimiter_ActiveLimiterNotCleaned(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 100, Burst: 200, CleanupInterval: 50 * time.Millisecond})
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	time.Sleep(30 * time.Millisecond)
	rl.Allow("10.0.0.1")
	time.Sleep(30 * time.Millisecond)
	rl.Cleanup()

	require.Equal(t, 1, rl.Len(), "recently used limiter must survive cleanup")
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 1, Burst: 1})
	rl.Stop()
	rl.Stop()
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	cases := map[float64]int{20: 1, 1: 1, 0.5: 2, 0.1: 10, 0: DefaultRetryAfterSeconds}
	for rps, want := range cases {
		rl := NewRateLimiter(Config{RPS: rps, Burst: 1})
		require.Equal(t, want, rl.RetryAfter(), "rps=%v", rps)
		rl.Stop()
	}
}

// =============================================================================
// Property: Limiter is thread-safe (concurrent access)
// =============================================================================

func testRateLimiter_ConcurrentAccess(t *rapid.T) {
	rl := NewRateLimiter(Config{RPS: 1000, Burst: 2000, CleanupInterval: time.Hour})
	defer rl.Stop()

	numClients := rapid.IntRange(1, 10).Draw(t, "numClients")
	numGoroutines := rapid.IntRange(2, 10).Draw(t, "numGoroutines")
	requestsPerGoroutine := rapid.IntRange(5, 30).Draw(t, "requestsPerGoroutine")

	keys := make([]string, numClients)
	for i := range keys {
		keys[i] = clientKeyGenerator().Draw(t, "key")
	}

	var wg sync.WaitGroup
	var successCount, failCount atomic.Int64
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for r := 0; r < requestsPerGoroutine; r++ {
				if rl.Allow(keys[(id+r)%numClients]) {
					successCount.Add(1)
				} else {
					failCount.Add(1)
				}
			}
		}(g)
	}
	wg.Wait()

	total := int64(numGoroutines * requestsPerGoroutine)
	if successCount.Load()+failCount.Load() != total {
		t.Fatalf("Request count mismatch: expected %d, got %d", total, successCount.Load()+failCount.Load())
	}
	if successCount.Load() == 0 {
		t.Fatal("Expected at least some requests to succeed")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rapid.Check(t, testRateLimiter_ConcurrentAccess)
}

// =============================================================================
// Middleware
// =============================================================================

func TestRateLimitMiddleware_RejectsBeyondBurst(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 0.5, Burst: 2, CleanupInterval: time.Hour})
	defer rl.Stop()

	handler := RateLimitMiddleware(rl, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/notes", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		rec := do("10.1.1.1:5000")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := do("10.1.1.1:5001")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "2", rec.Header().Get("Retry-After"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "rate_limited", body["code"])
	require.NotEmpty(t, body["error"])

	// A different client still gets through.
	require.Equal(t, http.StatusOK, do("10.1.1.2:5000").Code)
}

func TestRateLimitMiddleware_EmptyKeySkips(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	handler := RateLimitMiddleware(rl, func(*http.Request) string { return "" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
	require.Equal(t, 0, rl.Len())
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	require.Equal(t, "192.0.2.7", ClientKey(req))
	req.RemoteAddr = "[2001:db8::1]:443"
	require.Equal(t, "2001:db8::1", ClientKey(req))
	req.RemoteAddr = "unix-socket"
	require.Equal(t, "unix-socket", ClientKey(req))
}
