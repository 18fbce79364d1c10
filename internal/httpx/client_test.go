package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	clierr "github.com/kelreel/sonichash/internal/errors"
)

func TestDoJSONRetriesServerErrorWhenEnabled(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&count, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"x"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(2*time.Second, 1)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	var out map[string]any
	if _, err := client.DoJSON(context.Background(), req, &out); err != nil {
		t.Fatalf("DoJSON failed: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("unexpected response: %#v", out)
	}
}

func TestDoJSONAttemptsOnceByDefault(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(2*time.Second, 0)
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	_, err := client.DoJSON(context.Background(), req, nil)
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if clierr.ExitCode(err) != int(clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable code, got %v", err)
	}
	if got := atomic.LoadInt32(&count); got != 1 {
		t.Fatalf("expected exactly one attempt, got %d", got)
	}
}

func TestDoBodyJSONSendsHeadersAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"echo":"ok"}`))
	}))
	defer srv.Close()

	var out struct {
		Echo string `json:"echo"`
	}
	_, err := DoBodyJSON(context.Background(), New(time.Second, 0), http.MethodPost, srv.URL, []byte(`{}`), map[string]string{"Authorization": "Bearer k"}, &out)
	if err != nil {
		t.Fatalf("DoBodyJSON failed: %v", err)
	}
	if out.Echo != "ok" {
		t.Fatalf("unexpected body: %+v", out)
	}
}

func TestDoJSONSurfacesUpstreamErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	_, err := New(time.Second, 0).DoJSON(context.Background(), req, nil)
	if clierr.CodeOf(err) != clierr.CodeAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Incorrect API key provided") {
		t.Fatalf("expected upstream message in error, got %v", err)
	}
}

func TestDoJSONHonoursRetryAfter(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&count, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	start := time.Now()
	if _, err := New(3*time.Second, 1).DoJSON(context.Background(), req, nil); err != nil {
		t.Fatalf("DoJSON failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Fatalf("expected Retry-After wait, returned after %s", elapsed)
	}
}

func TestUpstreamMessageShapes(t *testing.T) {
	cases := map[string]string{
		`{"error":{"message":"nested"}}`: "nested",
		`{"error":"flat"}`:               "flat",
		`{"message":"top"}`:              "top",
		`not json`:                       "",
	}
	for body, want := range cases {
		if got := upstreamMessage([]byte(body)); got != want {
			t.Fatalf("upstreamMessage(%s) = %q, want %q", body, got, want)
		}
	}
}
