package feed

import (
	"time"

	"perp-mm/pkg/types"
)

// Merger applies SNAPSHOT/DELTA messages to a local OrderBook per §4.1's
// merge rule, detecting sequence gaps. It holds no network state, so it can
// be driven and tested without a WebSocket connection.
type Merger struct {
	book *types.OrderBook
}

// NewMerger creates a Merger over a fresh, empty book.
func NewMerger(market types.MarketID) *Merger {
	return &Merger{book: types.NewOrderBook(market)}
}

// Book returns the current book. Callers must not mutate it directly.
func (m *Merger) Book() *types.OrderBook {
	return m.book
}

// ApplySnapshot replaces the book wholesale. SNAPSHOT is always authoritative
// and never reports a gap.
func (m *Merger) ApplySnapshot(msg types.BookSnapshotMsg) {
	book := types.NewOrderBook(msg.Market)
	for _, lvl := range msg.Bids {
		book.Bids.Set(lvl.Price, lvl.Size)
	}
	for _, lvl := range msg.Asks {
		book.Asks.Set(lvl.Price, lvl.Size)
	}
	book.Sequence = msg.Sequence
	book.LastUpdateTS = time.Now()
	m.book = book
}

// ApplyDelta merges one incremental level change. Returns gap=true if the
// delta's sequence is not exactly last+1 — the caller must then drop the
// book and re-subscribe (§4.1); the delta is not applied in that case since
// the book is no longer trustworthy.
func (m *Merger) ApplyDelta(msg types.BookDeltaMsg) (gap bool) {
	if msg.Sequence != m.book.Sequence+1 {
		return true
	}
	if msg.Side == types.Buy {
		m.book.Bids.Set(msg.Price, msg.Size)
	} else {
		m.book.Asks.Set(msg.Price, msg.Size)
	}
	m.book.Sequence = msg.Sequence
	m.book.LastUpdateTS = time.Now()
	return false
}

// Reset clears the book, used when a gap forces a drop-and-resubscribe.
func (m *Merger) Reset(market types.MarketID) {
	m.book = types.NewOrderBook(market)
}
