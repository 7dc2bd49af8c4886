package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pi-llama/memoryd/common/retry"
)

func TestWaitReady_PollsUntilHealthy(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := retry.Config{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	if err := WaitReady(context.Background(), srv.URL, srv.Client(), cfg); err != nil {
		t.Fatalf("WaitReady: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 probes, got %d", hits.Load())
	}
}

func TestWaitReady_NoHealthRouteStopsEarly(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := retry.Config{MaxAttempts: 5, InitialDelay: time.Millisecond}
	if err := WaitReady(context.Background(), srv.URL, nil, cfg); err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 1 {
		t.Errorf("expected a single probe, got %d", hits.Load())
	}
}

func TestWaitReady_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond}
	if err := WaitReady(context.Background(), srv.URL, nil, cfg); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
}
