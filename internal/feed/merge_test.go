package feed

import (
	"testing"

	"github.com/shopspring/decimal"

	"perp-mm/pkg/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestApplySnapshotSetsBookAndSequence(t *testing.T) {
	m := NewMerger("ETH-USD")
	m.ApplySnapshot(types.BookSnapshotMsg{
		Market:   "ETH-USD",
		Sequence: 5,
		Bids:     []types.PriceLevel{{Price: d("2999.9"), Size: d("1")}},
		Asks:     []types.PriceLevel{{Price: d("3000.1"), Size: d("1")}},
	})

	bid, ask, ok := m.Book().BestBidAsk()
	if !ok {
		t.Fatalf("expected a valid top of book")
	}
	if !bid.Equal(d("2999.9")) || !ask.Equal(d("3000.1")) {
		t.Fatalf("unexpected top of book: bid=%s ask=%s", bid, ask)
	}
	if m.Book().Sequence != 5 {
		t.Fatalf("expected sequence 5, got %d", m.Book().Sequence)
	}
}

func TestApplyDeltaMergesAndAdvancesSequence(t *testing.T) {
	m := NewMerger("ETH-USD")
	m.ApplySnapshot(types.BookSnapshotMsg{Market: "ETH-USD", Sequence: 1})

	gap := m.ApplyDelta(types.BookDeltaMsg{Sequence: 2, Side: types.Buy, Price: d("100"), Size: d("5")})
	if gap {
		t.Fatalf("expected no gap for sequential delta")
	}
	if m.Book().Sequence != 2 {
		t.Fatalf("expected sequence 2, got %d", m.Book().Sequence)
	}

	level, ok := m.Book().Bids.Best(true)
	if !ok || !level.Size.Equal(d("5")) {
		t.Fatalf("expected bid level size 5, got %+v ok=%v", level, ok)
	}
}

func TestApplyDeltaDetectsGap(t *testing.T) {
	m := NewMerger("ETH-USD")
	m.ApplySnapshot(types.BookSnapshotMsg{Market: "ETH-USD", Sequence: 1})

	gap := m.ApplyDelta(types.BookDeltaMsg{Sequence: 3, Side: types.Buy, Price: d("100"), Size: d("5")})
	if !gap {
		t.Fatalf("expected gap when sequence jumps from 1 to 3")
	}
	// Book must be untouched by the rejected delta.
	if m.Book().Sequence != 1 {
		t.Fatalf("expected sequence to remain 1 after gap, got %d", m.Book().Sequence)
	}
}

func TestApplyDeltaZeroSizeRemovesLevel(t *testing.T) {
	m := NewMerger("ETH-USD")
	m.ApplySnapshot(types.BookSnapshotMsg{
		Market:   "ETH-USD",
		Sequence: 1,
		Bids:     []types.PriceLevel{{Price: d("100"), Size: d("5")}},
	})
	m.ApplyDelta(types.BookDeltaMsg{Sequence: 2, Side: types.Buy, Price: d("100"), Size: d("0")})

	if _, ok := m.Book().Bids.Best(true); ok {
		t.Fatalf("expected level to be removed after zero-size delta")
	}
}
