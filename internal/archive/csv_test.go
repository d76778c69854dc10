package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"perp-mm/pkg/types"
)

func TestCSVWriterWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	booksPath := filepath.Join(dir, "books.csv")

	w, err := NewCSVWriter(tradesPath, booksPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.WriteTrade(types.Trade{TradeID: "t1", Market: "ETH-USD", TSMillis: 1, Price: decimal.NewFromFloat(3000), Qty: decimal.NewFromFloat(0.1), Aggressor: types.Buy}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w2, err := NewCSVWriter(tradesPath, booksPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w2.WriteTrade(types.Trade{TradeID: "t2", Market: "ETH-USD", TSMillis: 2, Price: decimal.NewFromFloat(3001), Qty: decimal.NewFromFloat(0.2), Aggressor: types.Sell})
	w2.Close()

	data, err := os.ReadFile(tradesPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines: %q", len(lines), string(data))
	}
	if !strings.HasPrefix(lines[0], "trade_id,") {
		t.Fatalf("expected a header row, got %q", lines[0])
	}
}

func TestCSVWriterQuotesEmbeddedCommas(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(filepath.Join(dir, "trades.csv"), filepath.Join(dir, "books.csv"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.WriteTrade(types.Trade{TradeID: "t,1", Market: "ETH-USD", TSMillis: 1, Price: decimal.NewFromFloat(3000), Qty: decimal.NewFromFloat(0.1), Aggressor: types.Buy}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Close()

	data, _ := os.ReadFile(filepath.Join(dir, "trades.csv"))
	if !strings.Contains(string(data), `"t,1"`) {
		t.Fatalf("expected comma-containing field to be quoted, got %q", string(data))
	}
}

func TestMultiWriterForwardsSnapshotAndFlushes(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(filepath.Join(dir, "trades.csv"), filepath.Join(dir, "books.csv"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Close()

	mw := NewMultiWriter(testLogger(), w)
	if err := mw.WriteSnapshot(types.OrderBookSnapshot{Market: "ETH-USD", TSMillis: 1, BestBid: decimal.NewFromFloat(2999), BestAsk: decimal.NewFromFloat(3001), Mid: decimal.NewFromFloat(3000)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mw.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
