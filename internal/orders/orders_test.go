package orders

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"perp-mm/internal/exchange"
	"perp-mm/internal/nonce"
	"perp-mm/internal/signer"
	"perp-mm/internal/state"
	"perp-mm/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testManager(t *testing.T, handler http.HandlerFunc) (*Manager, *state.State) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	trading := types.TradingConfig{Market: "ETH-USD", TickSize: decimal.NewFromFloat(0.1), SizeIncrement: decimal.NewFromFloat(0.001)}
	var oracle signer.Oracle
	client := exchange.NewClient(exchange.Config{BaseURL: srv.URL, RequestTimeout: time.Second, MaxRetries: 0, DryRun: true}, oracle, testLogger())
	st := state.New()
	cfg := Config{RefreshInterval: 50 * time.Millisecond, RepricingThresholdBps: 5, ForceReplaceInterval: time.Minute, TradingEnabled: true}
	m := New(cfg, trading, st, client, nonce.New(0), testLogger())
	return m, st
}

func TestDecidePlacesWhenNoLiveOrder(t *testing.T) {
	m, st := testManager(t, nil)
	st.SetBook(decimal.NewFromFloat(2999.9), decimal.NewFromFloat(3000.1), 1, "")
	st.SetDesiredQuotes(&types.Quote{Side: types.Buy, Price: decimal.NewFromFloat(2999), Size: decimal.NewFromFloat(1)}, nil)

	snap := st.Snapshot()
	action := m.decide(types.Buy, snap, time.Now())
	if action != ActionPlace {
		t.Fatalf("expected Place, got %v", action)
	}
}

func TestDecideCancelsWhenDesiredCleared(t *testing.T) {
	m, st := testManager(t, nil)
	st.SetBook(decimal.NewFromFloat(2999.9), decimal.NewFromFloat(3000.1), 1, "")
	st.SetLiveOrder(types.Buy, &types.LiveOrder{OrderID: "o1", Side: types.Buy, Price: decimal.NewFromFloat(2999), PlacedTS: time.Now()})
	st.SetDesiredQuotes(nil, nil)

	snap := st.Snapshot()
	action := m.decide(types.Buy, snap, time.Now())
	if action != ActionCancel {
		t.Fatalf("expected Cancel, got %v", action)
	}
}

func TestDecideReplacesOnForceReplaceInterval(t *testing.T) {
	m, st := testManager(t, nil)
	st.SetBook(decimal.NewFromFloat(2999.9), decimal.NewFromFloat(3000.1), 1, "")
	st.SetLiveOrder(types.Buy, &types.LiveOrder{OrderID: "o1", Side: types.Buy, Price: decimal.NewFromFloat(2999), PlacedTS: time.Now().Add(-time.Hour)})
	st.SetDesiredQuotes(&types.Quote{Side: types.Buy, Price: decimal.NewFromFloat(2999), Size: decimal.NewFromFloat(1)}, nil)

	snap := st.Snapshot()
	action := m.decide(types.Buy, snap, time.Now())
	if action != ActionReplace {
		t.Fatalf("expected Replace, got %v", action)
	}
}

func TestDecideNoneWhenCloseEnough(t *testing.T) {
	m, st := testManager(t, nil)
	st.SetBook(decimal.NewFromFloat(2999.9), decimal.NewFromFloat(3000.1), 1, "")
	live := &types.LiveOrder{OrderID: "o1", Side: types.Buy, Price: decimal.NewFromFloat(2999), PlacedTS: time.Now(), Generation: 1}
	st.SetLiveOrder(types.Buy, live)
	gen := st.SetDesiredQuotes(&types.Quote{Side: types.Buy, Price: decimal.NewFromFloat(2999), Size: decimal.NewFromFloat(1)}, nil)
	live.Generation = gen

	snap := st.Snapshot()
	action := m.decide(types.Buy, snap, time.Now())
	if action != ActionNone {
		t.Fatalf("expected None, got %v", action)
	}
}

func TestTickPlacesOrderInDryRun(t *testing.T) {
	m, st := testManager(t, nil)
	st.SetBook(decimal.NewFromFloat(2999.9), decimal.NewFromFloat(3000.1), 1, "")
	st.SetDesiredQuotes(&types.Quote{Side: types.Buy, Price: decimal.NewFromFloat(2999), Size: decimal.NewFromFloat(1)}, nil)

	m.Tick(context.Background())

	snap := st.Snapshot()
	if snap.LiveBid == nil {
		t.Fatalf("expected a live bid after Tick")
	}
}

func TestTickSuppressesPlacementWhenTradingDisabled(t *testing.T) {
	m, st := testManager(t, nil)
	m.cfg.TradingEnabled = false
	st.SetBook(decimal.NewFromFloat(2999.9), decimal.NewFromFloat(3000.1), 1, "")
	st.SetDesiredQuotes(&types.Quote{Side: types.Buy, Price: decimal.NewFromFloat(2999), Size: decimal.NewFromFloat(1)}, nil)

	m.Tick(context.Background())

	if st.Snapshot().LiveBid != nil {
		t.Fatalf("expected no live bid while trading is disabled")
	}
}

func TestTickCancelsLiveOrdersOnStaleBook(t *testing.T) {
	m, st := testManager(t, nil)
	m.cfg.MaxStaleMillis = 100
	st.SetBook(decimal.NewFromFloat(2999.9), decimal.NewFromFloat(3000.1), 1, "")
	st.SetLiveOrder(types.Buy, &types.LiveOrder{OrderID: "o1", Side: types.Buy, Price: decimal.NewFromFloat(2999), PlacedTS: time.Now()})
	st.SetDesiredQuotes(&types.Quote{Side: types.Buy, Price: decimal.NewFromFloat(2999), Size: decimal.NewFromFloat(1)}, nil)

	time.Sleep(150 * time.Millisecond)
	m.Tick(context.Background())

	if st.Snapshot().LiveBid != nil {
		t.Fatalf("expected live bid to be cancelled once the book is stale")
	}
}

func TestBookIsStale(t *testing.T) {
	m, st := testManager(t, nil)
	m.cfg.MaxStaleMillis = 100

	if !m.bookIsStale(st.Snapshot()) {
		t.Fatalf("expected a book with no updates yet to be stale")
	}

	st.SetBook(decimal.NewFromFloat(2999.9), decimal.NewFromFloat(3000.1), 1, "")
	if m.bookIsStale(st.Snapshot()) {
		t.Fatalf("expected a freshly updated book not to be stale")
	}

	time.Sleep(150 * time.Millisecond)
	if !m.bookIsStale(st.Snapshot()) {
		t.Fatalf("expected the book to be stale after MaxStaleMillis has elapsed")
	}
}
