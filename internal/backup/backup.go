// Package backup implements the BackupPoller (§4.9): a REST fallback that
// refreshes the mid price when the live order-book feed has gone quiet for
// longer than the configured interval.
package backup

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"perp-mm/internal/exchange"
	"perp-mm/internal/state"
	"perp-mm/pkg/types"
)

// Config tunes the poller.
type Config struct {
	Market   types.MarketID
	Interval time.Duration // rest_backup_interval_sec, default 2s
}

// Poller periodically checks whether the feed has updated the book recently
// and, if not, fetches bid/ask via REST and republishes mid with the REST
// staleness flag set.
type Poller struct {
	cfg    Config
	client *exchange.Client
	st     *state.State
	logger *slog.Logger
}

func New(cfg Config, client *exchange.Client, st *state.State, logger *slog.Logger) *Poller {
	if cfg.Interval == 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Poller{cfg: cfg, client: client, st: st, logger: logger.With("component", "backup_poller")}
}

// Run checks every cfg.Interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.checkAndPoll(ctx)
		}
	}
}

func (p *Poller) checkAndPoll(ctx context.Context) {
	snap := p.st.Snapshot()
	if time.Since(snap.LastBookUpdateTS) < p.cfg.Interval {
		return // feed is live, nothing to do
	}

	book, err := p.client.GetOrderBook(ctx, p.cfg.Market)
	if err != nil {
		p.logger.Warn("backup poll failed", "error", err)
		return
	}
	mid, ok := restMid(book)
	if !ok {
		return
	}
	p.st.SetRESTMid(mid)
	p.logger.Debug("republished mid from REST", "mid", mid.String())
}

// restMid finds the best bid/ask in the REST response and returns their
// midpoint. Levels are not guaranteed sorted, so it scans for the max bid
// and min ask rather than assuming Bids[0]/Asks[0] are best.
func restMid(book *types.OrderBookRESTResponse) (decimal.Decimal, bool) {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return decimal.Zero, false
	}
	bestBid := book.Bids[0].Price
	for _, lvl := range book.Bids[1:] {
		if lvl.Price.GreaterThan(bestBid) {
			bestBid = lvl.Price
		}
	}
	bestAsk := book.Asks[0].Price
	for _, lvl := range book.Asks[1:] {
		if lvl.Price.LessThan(bestAsk) {
			bestAsk = lvl.Price
		}
	}
	if bestBid.GreaterThanOrEqual(bestAsk) {
		return decimal.Zero, false
	}
	return bestBid.Add(bestAsk).Div(decimal.NewFromInt(2)), true
}
