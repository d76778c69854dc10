package exchange

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"perp-mm/pkg/types"
)

type stubOracle struct{}

func (stubOracle) Sign(ctx context.Context, fields types.OrderFields) (types.SignatureRS, error) {
	return types.SignatureRS{R: "1", S: "2"}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGetOrderBookParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orderbook/ETH-USD" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(types.OrderBookRESTResponse{Market: "ETH-USD"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RequestTimeout: time.Second, MaxRetries: 0}, stubOracle{}, testLogger())
	book, err := c.GetOrderBook(context.Background(), "ETH-USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if book.Market != "ETH-USD" {
		t.Fatalf("expected market ETH-USD, got %s", book.Market)
	}
}

func TestPlaceOrderDryRunNeverHitsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("dry-run must not make HTTP requests, got %s", r.URL.Path)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RequestTimeout: time.Second, MaxRetries: 0, DryRun: true}, stubOracle{}, testLogger())
	resp, err := c.PlaceOrder(context.Background(), types.Quote{Side: types.Buy}, types.OrderFields{Market: "ETH-USD"}, "mm-1-BUY-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != "LIVE" {
		t.Fatalf("expected LIVE status, got %s", resp.Status)
	}
}

func TestPlaceOrderRejectsOnAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RequestTimeout: time.Second, MaxRetries: 0}, stubOracle{}, testLogger())
	_, err := c.PlaceOrder(context.Background(), types.Quote{Side: types.Buy}, types.OrderFields{Market: "ETH-USD"}, "mm-1-BUY-1")
	if err == nil {
		t.Fatalf("expected an error on 401")
	}
}

func TestCancelOrderTreatsNotFoundAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, RequestTimeout: time.Second, MaxRetries: 0}, stubOracle{}, testLogger())
	if err := c.CancelOrder(context.Background(), "already-gone"); err != nil {
		t.Fatalf("expected nil error for 404, got %v", err)
	}
}
