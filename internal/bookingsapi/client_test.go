package bookingsapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSubmit_SendsIdempotencyKeyAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/wizards/d-1/submit" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		if r.Header.Get("Idempotency-Key") == "" {
			t.Errorf("missing idempotency key")
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"lesson":  map[string]any{"id": 3, "date": "2025-01-10", "time": "14:00"},
			"title":   "Aula agendada com sucesso!",
			"message": "Sua aula foi marcada para 2025-01-10 às 14:00",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", 5*time.Second)
	sub, err := c.Submit(context.Background(), "d-1", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Lesson.ID != 3 || sub.Message != "Sua aula foi marcada para 2025-01-10 às 14:00" {
		t.Fatalf("unexpected submission %+v", sub)
	}
}

func TestSubmit_ReportsReplay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"lesson":{"id":3},"message":"ok"}`)
	}))
	defer srv.Close()

	sub, err := NewClient(srv.URL, "tok", 5*time.Second).Submit(context.Background(), "d-2", "k")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !sub.Replayed || sub.Lesson.ID != 3 {
		t.Fatalf("expected a replayed submission, got %+v", sub)
	}
}

func TestErrors_AreDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":"Este horário não está mais disponível para o instrutor","code":"SLOT_TAKEN"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "tok", 5*time.Second).Submit(context.Background(), "d-1", "k")
	if !IsSlotTaken(err) {
		t.Fatalf("expected slot taken, got %v", err)
	}
}

func TestAdvance_ReportsMoved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"moved": false, "draft": map[string]any{"id": "d-1", "step": 1}})
	}))
	defer srv.Close()

	v, moved, err := NewClient(srv.URL+"/", "", time.Second).Advance(context.Background(), "d-1")
	if err != nil || moved || v.Step != 1 {
		t.Fatalf("unexpected result %+v %v %v", v, moved, err)
	}
}
