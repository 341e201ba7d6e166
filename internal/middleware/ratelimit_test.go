package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"
)

// fakeClock lets tests move the limiter's notion of time.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, limit int, window time.Duration) (*RateLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(limit, window)
	rl.now = clock.now
	t.Cleanup(rl.Stop)
	return rl, clock
}

func TestRateLimiterAllow(t *testing.T) {
	rl, _ := newTestLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		if ok, _ := rl.allow("test-ip"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	if ok, _ := rl.allow("test-ip"); ok {
		t.Error("4th request should be rate-limited")
	}

	if ok, _ := rl.allow("other-ip"); !ok {
		t.Error("different IP should be allowed")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl, clock := newTestLimiter(t, 2, time.Minute)

	rl.allow("test-ip")
	clock.advance(20 * time.Second)
	rl.allow("test-ip")

	ok, wait := rl.allow("test-ip")
	if ok {
		t.Fatal("should be rate-limited")
	}
	if wait != 40*time.Second {
		t.Errorf("retry after = %s, want 40s", wait)
	}

	clock.advance(41 * time.Second)
	if ok, _ := rl.allow("test-ip"); !ok {
		t.Error("should be allowed once the first request leaves the window")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(t, 2, time.Minute)

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/functions/v1/generate-image", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 2; i++ {
		if rr := send(); rr.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d, want 200", i+1, rr.Code)
		}
	}

	rr := send()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("got status %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", rr.Header().Get("Retry-After"))
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "Too many requests") {
		t.Errorf("body = %q", rr.Body.String())
	}
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		xff        string
		xri        string
		remoteAddr string
		trusted    []netip.Prefix
		want       string
	}{
		{"remote addr only", "", "", "192.168.1.1:1234", nil, "192.168.1.1"},
		{"remote addr no port", "", "", "192.168.1.1", nil, "192.168.1.1"},
		{"ipv6 remote addr", "", "", "[2001:db8::1]:443", nil, "2001:db8::1"},
		{"forwarded header ignored without proxies", "10.0.0.1", "", "192.168.1.1:1234", nil, "192.168.1.1"},
		{"spoofed header from untrusted peer", "1.2.3.4", "5.6.7.8", "203.0.113.5:999", trusted, "203.0.113.5"},
		{"trusted proxy single hop", "1.2.3.4", "", "10.0.0.1:80", trusted, "1.2.3.4"},
		{"rightmost untrusted hop wins", "6.6.6.6, 1.2.3.4, 10.0.0.2", "", "10.0.0.1:80", trusted, "1.2.3.4"},
		{"all hops trusted", "10.0.0.3, 10.0.0.2", "", "10.0.0.1:80", trusted, "10.0.0.3"},
		{"malformed hop", "not-an-ip", "", "10.0.0.1:80", trusted, "10.0.0.1"},
		{"x-real-ip from trusted proxy", "", "1.2.3.4", "10.0.0.1:80", trusted, "1.2.3.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := clientIP(req, tt.trusted); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiterIgnoresSpoofedForwardedFor(t *testing.T) {
	rl, _ := newTestLimiter(t, 1, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, xff := range []string{"1.1.1.1", "2.2.2.2"} {
		req := httptest.NewRequest(http.MethodPost, "/functions/v1/generate-image", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		want := http.StatusOK
		if i == 1 {
			want = http.StatusTooManyRequests
		}
		if rr.Code != want {
			t.Errorf("request %d with X-Forwarded-For %s: got %d, want %d", i+1, xff, rr.Code, want)
		}
	}
}

func TestRateLimiterTrustedProxyKeysByClient(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}
	rl, _ := newTestLimiter(t, 1, time.Minute)
	rl.TrustProxies(trusted)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, xff := range []string{"1.1.1.1", "2.2.2.2"} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("client %s behind the proxy: got %d, want 200", xff, rr.Code)
		}
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{" 10.0.0.0/8 ", "", "192.168.1.10", "2001:db8::/32"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d prefixes, want 3", len(got))
	}
	if got[1].String() != "192.168.1.10/32" {
		t.Errorf("bare address: got %s", got[1])
	}

	if _, err := ParseTrustedProxies([]string{"10.0.0.0/99"}); err == nil {
		t.Error("expected an error for an invalid CIDR")
	}
	if _, err := ParseTrustedProxies([]string{"proxy.local"}); err == nil {
		t.Error("expected an error for a hostname")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl, clock := newTestLimiter(t, 10, time.Minute)

	rl.allow("ip-old")
	rl.allow("ip-fresh")

	clock.advance(90 * time.Second)
	rl.allow("ip-fresh")

	rl.cleanup()

	rl.mu.RLock()
	_, oldExists := rl.clients["ip-old"]
	_, freshExists := rl.clients["ip-fresh"]
	rl.mu.RUnlock()

	if oldExists {
		t.Error("ip-old should have been cleaned up")
	}
	if !freshExists {
		t.Error("ip-fresh should still exist")
	}
}

func TestRateLimiterStopTwice(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	rl.Stop()
	rl.Stop()
}
