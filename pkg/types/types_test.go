package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSideOpposite(t *testing.T) {
	if Buy.Opposite() != Sell {
		t.Errorf("Buy.Opposite() = %s, want SELL", Buy.Opposite())
	}
	if Sell.Opposite() != Buy {
		t.Errorf("Sell.Opposite() = %s, want BUY", Sell.Opposite())
	}
}

func TestRoundPriceTowardMid(t *testing.T) {
	t.Parallel()

	cfg := TradingConfig{TickSize: decimal.RequireFromString("0.01")}

	tests := []struct {
		side Side
		raw  string
		want string
	}{
		{Buy, "100.126", "100.12"},
		{Sell, "100.121", "100.13"},
		{Buy, "100.10", "100.10"},
	}

	for _, tt := range tests {
		got := cfg.RoundPriceTowardMid(tt.side, decimal.RequireFromString(tt.raw))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("RoundPriceTowardMid(%s, %s) = %s, want %s", tt.side, tt.raw, got, tt.want)
		}
	}
}

func TestRoundPriceTowardMidZeroTick(t *testing.T) {
	cfg := TradingConfig{TickSize: decimal.Zero}
	raw := decimal.RequireFromString("100.12345")
	if got := cfg.RoundPriceTowardMid(Buy, raw); !got.Equal(raw) {
		t.Errorf("zero tick size should pass raw price through unchanged, got %s", got)
	}
}

func TestRoundSizeDownFloorsRegardlessOfSide(t *testing.T) {
	cfg := TradingConfig{SizeIncrement: decimal.RequireFromString("0.001")}
	raw := decimal.RequireFromString("1.23456")
	want := decimal.RequireFromString("1.234")
	if got := cfg.RoundSizeDown(raw); !got.Equal(want) {
		t.Errorf("RoundSizeDown(%s) = %s, want %s", raw, got, want)
	}
}

func TestBookSideSetAndLevels(t *testing.T) {
	side := make(BookSide)
	side.Set(decimal.RequireFromString("100.5"), decimal.RequireFromString("2"))
	side.Set(decimal.RequireFromString("100.2"), decimal.RequireFromString("3"))
	side.Set(decimal.RequireFromString("100.8"), decimal.RequireFromString("1"))

	bids := side.Levels(true)
	if len(bids) != 3 {
		t.Fatalf("len(bids) = %d, want 3", len(bids))
	}
	if !bids[0].Price.Equal(decimal.RequireFromString("100.8")) {
		t.Errorf("best bid = %s, want 100.8", bids[0].Price)
	}

	asks := side.Levels(false)
	if !asks[0].Price.Equal(decimal.RequireFromString("100.2")) {
		t.Errorf("best ask = %s, want 100.2", asks[0].Price)
	}
}

func TestBookSideSetZeroRemovesLevel(t *testing.T) {
	side := make(BookSide)
	side.Set(decimal.RequireFromString("100"), decimal.RequireFromString("5"))
	side.Set(decimal.RequireFromString("100"), decimal.Zero)
	if _, ok := side.Best(true); ok {
		t.Error("expected level to be removed after zero-size Set")
	}
}

func TestOrderBookBestBidAskAndMid(t *testing.T) {
	book := NewOrderBook("ETH-USD")
	book.Bids.Set(decimal.RequireFromString("100"), decimal.RequireFromString("1"))
	book.Asks.Set(decimal.RequireFromString("102"), decimal.RequireFromString("1"))

	bid, ask, ok := book.BestBidAsk()
	if !ok || !bid.Equal(decimal.RequireFromString("100")) || !ask.Equal(decimal.RequireFromString("102")) {
		t.Fatalf("BestBidAsk() = %s, %s, %v", bid, ask, ok)
	}

	mid, ok := book.Mid()
	if !ok || !mid.Equal(decimal.RequireFromString("101")) {
		t.Fatalf("Mid() = %s, %v, want 101", mid, ok)
	}
}

func TestOrderBookValid(t *testing.T) {
	book := NewOrderBook("ETH-USD")
	if !book.Valid() {
		t.Error("empty book should be valid")
	}

	book.Bids.Set(decimal.RequireFromString("100"), decimal.RequireFromString("1"))
	book.Asks.Set(decimal.RequireFromString("99"), decimal.RequireFromString("1"))
	if book.Valid() {
		t.Error("crossed book (bid >= ask) should be invalid")
	}
}

func TestClientOrderID(t *testing.T) {
	got := ClientOrderID(7, Buy, -42)
	want := "mm-7-BUY--42"
	if got != want {
		t.Errorf("ClientOrderID() = %s, want %s", got, want)
	}
}

func TestPingPongModeFlip(t *testing.T) {
	if ModeIdle.Flip(Buy) != ModeNeedSell {
		t.Errorf("Flip(Buy) = %s, want NEED_SELL", ModeIdle.Flip(Buy))
	}
	if ModeIdle.Flip(Sell) != ModeNeedBuy {
		t.Errorf("Flip(Sell) = %s, want NEED_BUY", ModeIdle.Flip(Sell))
	}
}
