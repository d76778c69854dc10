package backup

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"perp-mm/internal/exchange"
	"perp-mm/internal/state"
	"perp-mm/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCheckAndPollSkipsWhenFeedIsFresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("should not poll REST while the feed is fresh")
	}))
	defer srv.Close()

	client := exchange.NewClient(exchange.Config{BaseURL: srv.URL, RequestTimeout: time.Second}, nil, testLogger())
	st := state.New()
	st.SetBook(decimal.NewFromFloat(2999), decimal.NewFromFloat(3001), 1, "")

	p := New(Config{Market: "ETH-USD", Interval: time.Hour}, client, st, testLogger())
	p.checkAndPoll(context.Background())
}

func TestCheckAndPollRepublishesMidWhenStale(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.OrderBookRESTResponse{
			Market: "ETH-USD",
			Bids:   []types.PriceLevel{{Price: decimal.NewFromFloat(2999), Size: decimal.NewFromFloat(1)}},
			Asks:   []types.PriceLevel{{Price: decimal.NewFromFloat(3001), Size: decimal.NewFromFloat(1)}},
		})
	}))
	defer srv.Close()

	client := exchange.NewClient(exchange.Config{BaseURL: srv.URL, RequestTimeout: time.Second}, nil, testLogger())
	st := state.New()

	p := New(Config{Market: "ETH-USD", Interval: time.Millisecond}, client, st, testLogger())
	time.Sleep(5 * time.Millisecond)
	p.checkAndPoll(context.Background())

	snap := st.Snapshot()
	if snap.StaleSource != "REST" {
		t.Fatalf("expected stale_source REST, got %q", snap.StaleSource)
	}
	if !snap.Mid.Equal(decimal.NewFromFloat(3000)) {
		t.Fatalf("expected mid 3000, got %s", snap.Mid.String())
	}
}

func TestRestMidRejectsCrossedBook(t *testing.T) {
	book := &types.OrderBookRESTResponse{
		Bids: []types.PriceLevel{{Price: decimal.NewFromFloat(3002)}},
		Asks: []types.PriceLevel{{Price: decimal.NewFromFloat(3001)}},
	}
	if _, ok := restMid(book); ok {
		t.Fatalf("expected a crossed book to be rejected")
	}
}
