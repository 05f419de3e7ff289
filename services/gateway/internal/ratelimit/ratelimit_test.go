package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync"
	"testing"
	"time"
)

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (c *memCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int64)
	}
	c.counts[key]++
	return c.counts[key], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func mustTrusted(t *testing.T, entries ...string) []netip.Prefix {
	t.Helper()
	trusted, err := ParseTrustedProxies(entries)
	if err != nil {
		t.Fatalf("parse trusted proxies: %v", err)
	}
	return trusted
}

func TestLimiter_RejectsOverLimitPerIP(t *testing.T) {
	l := New(&memCounter{}, Config{Requests: 2, Window: time.Minute, TrustedProxies: mustTrusted(t, "10.0.0.0/8")})
	h := l.Middleware("login")(okHandler())

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/api/login/", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.2")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("203.0.113.7"); code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, code)
		}
	}
	if code := send("203.0.113.7"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := send("198.51.100.1"); code != http.StatusNoContent {
		t.Fatalf("other client should pass, got %d", code)
	}
}

func TestLimiter_FailsOpen(t *testing.T) {
	l := New(&memCounter{err: errors.New("redis down")}, Config{Requests: 1, Window: time.Minute})
	h := l.Middleware("register")(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected pass-through, got %d", rec.Code)
		}
	}
}

func TestLimiter_IgnoresSpoofedForwardedFor(t *testing.T) {
	l := New(&memCounter{}, Config{Requests: 2, Window: time.Minute, TrustedProxies: mustTrusted(t, "10.0.0.0/8")})
	h := l.Middleware("login")(okHandler())

	// A direct client rotating X-Forwarded-For is still one address.
	codes := make([]int, 0, 3)
	for _, spoofed := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		req := httptest.NewRequest(http.MethodPost, "/auth/api/login/", nil)
		req.RemoteAddr = "203.0.113.50:5000"
		req.Header.Set("X-Forwarded-For", spoofed)
		req.Header.Set("X-Real-IP", spoofed)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected the third attempt to be limited, got %v", codes)
	}
}

func TestClientIP(t *testing.T) {
	trusted := mustTrusted(t, "10.0.0.0/8", "192.0.2.1")

	tests := []struct {
		name   string
		remote string
		xff    []string
		xri    string
		want   string
	}{
		{"direct", "203.0.113.5:5555", nil, "", "203.0.113.5"},
		{"untrusted peer sends xff", "203.0.113.5:5555", []string{"198.51.100.9"}, "", "203.0.113.5"},
		{"untrusted peer sends x-real-ip", "203.0.113.5:5555", nil, "198.51.100.9", "203.0.113.5"},
		{"trusted proxy", "10.1.2.3:80", []string{"198.51.100.9"}, "", "198.51.100.9"},
		{"client prepends a fake hop", "10.1.2.3:80", []string{"1.2.3.4, 198.51.100.9"}, "", "198.51.100.9"},
		{"proxy chain", "192.0.2.1:80", []string{"198.51.100.9, 10.0.0.7"}, "", "198.51.100.9"},
		{"split headers", "10.1.2.3:80", []string{"1.2.3.4", "198.51.100.9"}, "", "198.51.100.9"},
		{"garbage hop stops the walk", "10.1.2.3:80", []string{"198.51.100.9, nonsense, 10.0.0.7"}, "", "10.0.0.7"},
		{"trusted proxy with x-real-ip", "10.1.2.3:80", nil, " 198.51.100.4 ", "198.51.100.4"},
		{"ipv4 mapped peer", "[::ffff:203.0.113.5]:5555", nil, "", "203.0.113.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := ClientIP(req, trusted); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	if _, err := ParseTrustedProxies([]string{"10.0.0.0/8", "not-an-ip"}); err == nil {
		t.Fatal("expected an error for an invalid entry")
	}
	trusted := mustTrusted(t, "10.0.0.0/8", " 192.0.2.1 ")
	if len(trusted) != 2 || !trusted[1].Contains(netip.MustParseAddr("192.0.2.1")) {
		t.Fatalf("unexpected prefixes %v", trusted)
	}
}
