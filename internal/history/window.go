// Package history maintains the rolling window of trades and top-of-book
// samples the volatility and kappa estimators read from (§3, §4.2). The
// sole writer is the feed ingestor; eviction of stale entries is amortized
// onto the read path rather than run on a timer.
package history

import (
	"sync"
	"time"

	"perp-mm/pkg/types"
)

// Window is a thread-safe append-only log of trades and top-of-book
// samples, bounded to the trailing windowHours.
type Window struct {
	mu          sync.Mutex
	windowHours float64

	trades    []types.Trade
	seenTrade map[string]struct{}

	samples []types.TopOfBookSample
}

// New creates an empty window keyed by windowHours (§3 default 24).
func New(windowHours float64) *Window {
	return &Window{
		windowHours: windowHours,
		seenTrade:   make(map[string]struct{}),
	}
}

// AppendTrade adds a trade, deduplicated by TradeID within the window.
func (w *Window) AppendTrade(t types.Trade) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, dup := w.seenTrade[t.TradeID]; dup {
		return
	}
	w.seenTrade[t.TradeID] = struct{}{}
	w.trades = append(w.trades, t)
}

// AppendSample adds a top-of-book sample, taken on every order-book update.
func (w *Window) AppendSample(s types.TopOfBookSample) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, s)
}

// Trades returns all trades with ts >= now - window, evicting older entries
// first.
func (w *Window) Trades(now time.Time) []types.Trade {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(now)
	out := make([]types.Trade, len(w.trades))
	copy(out, w.trades)
	return out
}

// Samples returns all top-of-book samples with ts >= now - window, evicting
// older entries first.
func (w *Window) Samples(now time.Time) []types.TopOfBookSample {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(now)
	out := make([]types.TopOfBookSample, len(w.samples))
	copy(out, w.samples)
	return out
}

// evict drops entries older than the window. Must be called with mu held.
func (w *Window) evict(now time.Time) {
	cutoff := now.Add(-time.Duration(w.windowHours * float64(time.Hour))).UnixMilli()

	if len(w.trades) > 0 {
		i := 0
		for i < len(w.trades) && w.trades[i].TSMillis < cutoff {
			delete(w.seenTrade, w.trades[i].TradeID)
			i++
		}
		if i > 0 {
			w.trades = append([]types.Trade{}, w.trades[i:]...)
		}
	}

	if len(w.samples) > 0 {
		i := 0
		for i < len(w.samples) && w.samples[i].TSMillis < cutoff {
			i++
		}
		if i > 0 {
			w.samples = append([]types.TopOfBookSample{}, w.samples[i:]...)
		}
	}
}
