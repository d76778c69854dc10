package history

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"perp-mm/pkg/types"
)

func TestAppendTradeDeduplicatesByTradeID(t *testing.T) {
	w := New(24)
	now := time.Now()
	tr := types.Trade{TradeID: "t1", TSMillis: now.UnixMilli(), Price: decimal.NewFromInt(100), Qty: decimal.NewFromInt(1)}
	w.AppendTrade(tr)
	w.AppendTrade(tr)

	got := w.Trades(now)
	if len(got) != 1 {
		t.Fatalf("expected 1 deduplicated trade, got %d", len(got))
	}
}

func TestTradesEvictsOlderThanWindow(t *testing.T) {
	w := New(1) // 1 hour window
	now := time.Now()
	old := types.Trade{TradeID: "old", TSMillis: now.Add(-2 * time.Hour).UnixMilli()}
	fresh := types.Trade{TradeID: "fresh", TSMillis: now.UnixMilli()}
	w.AppendTrade(old)
	w.AppendTrade(fresh)

	got := w.Trades(now)
	if len(got) != 1 || got[0].TradeID != "fresh" {
		t.Fatalf("expected only fresh trade to survive eviction, got %+v", got)
	}
}

func TestSamplesEvictsOlderThanWindow(t *testing.T) {
	w := New(1)
	now := time.Now()
	w.AppendSample(types.TopOfBookSample{TSMillis: now.Add(-2 * time.Hour).UnixMilli()})
	w.AppendSample(types.TopOfBookSample{TSMillis: now.UnixMilli()})

	got := w.Samples(now)
	if len(got) != 1 {
		t.Fatalf("expected 1 sample to survive eviction, got %d", len(got))
	}
}
