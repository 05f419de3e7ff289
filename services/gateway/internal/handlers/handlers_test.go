package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/autoescola/services/gateway/internal/proxy"
	"github.com/diagnosis/autoescola/services/gateway/internal/ratelimit"
)

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *memCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key], nil
}

func echoServer(t *testing.T, name string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Upstream", name)
		w.Header().Set("X-Seen-Auth", r.Header.Get("Authorization"))
		w.Header().Set("X-Seen-Idempotency", r.Header.Get("Idempotency-Key"))
		w.Header().Set("X-Seen-Forwarded-For", r.Header.Get("X-Forwarded-For"))
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, r.Method+" "+r.URL.RequestURI()+" "+string(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGateway(t *testing.T, limit int) http.Handler {
	t.Helper()
	authSrv := echoServer(t, "auth")
	bookingsSrv := echoServer(t, "bookings")
	limiter := ratelimit.New(&memCounter{counts: map[string]int64{}}, ratelimit.Config{Requests: limit, Window: time.Minute})
	h := New(
		proxy.NewServiceProxy("auth", authSrv.URL, 5*time.Second),
		proxy.NewServiceProxy("bookings", bookingsSrv.URL+"/", 5*time.Second),
		limiter,
	)
	return h.Routes()
}

func TestRoutes_ForwardToUpstreams(t *testing.T) {
	gw := newGateway(t, 10)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		upstream string
		want     string
	}{
		{"login", http.MethodPost, "/auth/api/login/", `{"email":"a@b.co"}`, "auth", `POST /auth/api/login/ {"email":"a@b.co"}`},
		{"register", http.MethodPost, "/auth/api/register/aluno/", `{}`, "auth", `POST /auth/api/register/aluno/ {}`},
		{"me", http.MethodGet, "/auth/api/me/", "", "auth", "GET /auth/api/me/ "},
		{"wizard", http.MethodPut, "/v1/wizards/d-1/datetime", `{"date":"2030-01-10"}`, "bookings", `PUT /v1/wizards/d-1/datetime {"date":"2030-01-10"}`},
		{"lesson status", http.MethodPatch, "/v1/instructors/me/lessons/9", `{"status":"completed"}`, "bookings", `PATCH /v1/instructors/me/lessons/9 {"status":"completed"}`},
		{"lessons with query", http.MethodGet, "/v1/instructors/me/lessons?limit=5", "", "bookings", "GET /v1/instructors/me/lessons?limit=5 "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Authorization", "Bearer tok")
			req.Header.Set("Idempotency-Key", "k-1")
			rec := httptest.NewRecorder()
			gw.ServeHTTP(rec, req)

			if rec.Code != http.StatusAccepted {
				t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := rec.Header().Get("X-Upstream"); got != tt.upstream {
				t.Fatalf("expected upstream %s, got %s", tt.upstream, got)
			}
			if rec.Header().Get("X-Seen-Auth") != "Bearer tok" || rec.Header().Get("X-Seen-Idempotency") != "k-1" {
				t.Fatal("expected headers to be forwarded")
			}
			if got := rec.Body.String(); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRoutes_LoginIsRateLimited(t *testing.T) {
	gw := newGateway(t, 2)

	send := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}"))
		req.RemoteAddr = "203.0.113.9:4000"
		rec := httptest.NewRecorder()
		gw.ServeHTTP(rec, req)
		return rec.Code
	}

	send("/auth/api/login/")
	send("/auth/api/login/")
	if code := send("/auth/api/login/"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := send("/auth/api/register/aluno/"); code != http.StatusAccepted {
		t.Fatalf("register has its own budget, got %d", code)
	}
	if code := send("/auth/api/logout/"); code != http.StatusAccepted {
		t.Fatalf("logout is not limited, got %d", code)
	}
}

func TestForward_UpstreamDown(t *testing.T) {
	limiter := ratelimit.New(&memCounter{counts: map[string]int64{}}, ratelimit.Config{Requests: 5, Window: time.Minute})
	h := New(
		proxy.NewServiceProxy("auth", "http://127.0.0.1:1", time.Second),
		proxy.NewServiceProxy("bookings", "http://127.0.0.1:1", time.Second),
		limiter,
	)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/catalog", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRoutes_SpoofedForwardedForDoesNotEscapeLimit(t *testing.T) {
	gw := newGateway(t, 2)

	var last *httptest.ResponseRecorder
	for i, spoofed := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		req := httptest.NewRequest(http.MethodPost, "/auth/api/login/", strings.NewReader("{}"))
		req.RemoteAddr = "203.0.113.9:4000"
		req.Header.Set("X-Forwarded-For", spoofed)
		last = httptest.NewRecorder()
		gw.ServeHTTP(last, req)

		if i == 0 {
			if got := last.Header().Get("X-Seen-Forwarded-For"); got != "198.51.100.1, 203.0.113.9" {
				t.Fatalf("expected the peer to be appended, got %q", got)
			}
		}
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for a rotating X-Forwarded-For, got %d", last.Code)
	}
}
