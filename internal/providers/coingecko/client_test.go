package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kelreel/sonichash/internal/httpx"
)

func TestSimplePriceDedupesIDs(t *testing.T) {
	var gotIDs string
	mux := http.NewServeMux()
	mux.HandleFunc("/simple/price", func(w http.ResponseWriter, r *http.Request) {
		gotIDs = r.URL.Query().Get("ids")
		if r.URL.Query().Get("vs_currencies") != "usd" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"sonic-3":{"usd":0.52},"tether":{"usd":1.0}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), srv.URL, "")
	prices, err := c.SimplePrice(context.Background(), []string{"tether", "sonic-3", "sonic-3", "unknown-id"})
	if err != nil {
		t.Fatalf("SimplePrice failed: %v", err)
	}
	if gotIDs != "sonic-3,tether,unknown-id" {
		t.Fatalf("unexpected ids query: %q", gotIDs)
	}
	if prices["sonic-3"] != 0.52 || prices["tether"] != 1.0 {
		t.Fatalf("unexpected prices: %+v", prices)
	}
	if _, ok := prices["unknown-id"]; ok {
		t.Fatalf("did not expect unknown id in result: %+v", prices)
	}
}

func TestSimplePriceSendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-cg-demo-api-key") != "demo" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(httpx.New(2*time.Second, 0), srv.URL, "demo")
	if _, err := c.SimplePrice(context.Background(), []string{"weth"}); err != nil {
		t.Fatalf("SimplePrice failed: %v", err)
	}
}

func TestSimplePriceNoIDsSkipsRequest(t *testing.T) {
	c := New(httpx.New(time.Second, 0), "http://127.0.0.1:1", "")
	prices, err := c.SimplePrice(context.Background(), nil)
	if err != nil || len(prices) != 0 {
		t.Fatalf("expected empty result without request, got %+v err=%v", prices, err)
	}
}
