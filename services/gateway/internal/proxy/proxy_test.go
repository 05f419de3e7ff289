package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestForward_AppendsPeerToForwardedFor(t *testing.T) {
	var seen []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Values("X-Forwarded-For")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()
	p := NewServiceProxy("bookings", upstream.URL, 5*time.Second)

	tests := []struct {
		name string
		xff  []string
		want string
	}{
		{"no prior hops", nil, "203.0.113.9"},
		{"client supplied", []string{"1.2.3.4"}, "1.2.3.4, 203.0.113.9"},
		{"several headers", []string{"1.2.3.4", "10.0.0.2"}, "1.2.3.4, 10.0.0.2, 203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/catalog", nil)
			req.RemoteAddr = "203.0.113.9:4000"
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			rec := httptest.NewRecorder()
			p.Forward(rec, req, "/v1/catalog")

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if len(seen) != 1 || seen[0] != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, seen)
			}
		})
	}
}

func TestForward_UpstreamDown(t *testing.T) {
	p := NewServiceProxy("auth", "http://127.0.0.1:1", time.Second)
	rec := httptest.NewRecorder()
	p.Forward(rec, httptest.NewRequest(http.MethodPost, "/auth/api/login/", strings.NewReader("{}")), "/auth/api/login/")

	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(string(body), "SERVICE_UNAVAILABLE") {
		t.Fatalf("expected 503, got %d %s", rec.Code, body)
	}
}
