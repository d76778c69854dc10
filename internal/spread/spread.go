// Package spread implements the SpreadCalculator (§4.5): combines mid, sigma,
// kappa, gamma, and inventory into target bid/ask quotes under the
// Avellaneda-Stoikov reservation-price model.
package spread

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"perp-mm/internal/state"
	"perp-mm/pkg/types"
)

// Config mirrors the strategy-tunable fields the calculator needs.
type Config struct {
	Gamma             float64
	MinSpreadBps      float64
	TimeHorizonHours  float64
	NotionalUSD       float64
	MaxStaleMillis    int64
}

// Calculator derives desired quotes from the current BotState and publishes
// them back through state.State.SetDesiredQuotes.
type Calculator struct {
	cfg     Config
	trading types.TradingConfig
	st      *state.State
}

func New(cfg Config, trading types.TradingConfig, st *state.State) *Calculator {
	return &Calculator{cfg: cfg, trading: trading, st: st}
}

// Compute runs one SpreadCalculator pass (§4.5). It reads the current
// snapshot, derives target quotes, and publishes them (or clears them on
// rejection). It returns the rejection reason, or "" on success.
func (c *Calculator) Compute(now time.Time) string {
	snap := c.st.Snapshot()

	if reason := c.rejectReason(snap, now); reason != "" {
		c.st.SetDesiredQuotes(nil, nil)
		return reason
	}

	mid, _ := snap.Mid.Float64()
	sigma := *snap.Sigma
	kappa := *snap.Kappa
	q, _ := snap.InventoryQ.Float64()

	tHorizon := c.cfg.TimeHorizonHours * 3600 // AS T in seconds, consistent with per-second sigma

	halfSpread := (1 / c.cfg.Gamma) * math.Log(1+c.cfg.Gamma/kappa)
	halfSpread += 0.5 * c.cfg.Gamma * sigma * sigma * tHorizon

	reservation := mid - q*c.cfg.Gamma*sigma*sigma*tHorizon

	rawBid := reservation - halfSpread
	rawAsk := reservation + halfSpread

	minSpread := c.cfg.MinSpreadBps * mid * 1e-4
	if (rawAsk - rawBid) < minSpread {
		widen := (minSpread - (rawAsk - rawBid)) / 2
		rawBid -= widen
		rawAsk += widen
	}

	bidDec := decimal.NewFromFloat(rawBid)
	askDec := decimal.NewFromFloat(rawAsk)

	bidPrice := c.trading.RoundPriceTowardMid(types.Buy, bidDec)
	askPrice := c.trading.RoundPriceTowardMid(types.Sell, askDec)

	if bidPrice.GreaterThanOrEqual(snap.Mid) || askPrice.LessThanOrEqual(snap.Mid) {
		c.st.SetDesiredQuotes(nil, nil)
		return "computed prices cross mid"
	}

	size := c.sizeFor(mid)
	if size.IsZero() {
		c.st.SetDesiredQuotes(nil, nil)
		return "computed size below minimum notional"
	}

	bid := &types.Quote{Side: types.Buy, Price: bidPrice, Size: size}
	ask := &types.Quote{Side: types.Sell, Price: askPrice, Size: size}
	c.st.SetDesiredQuotes(bid, ask)
	return ""
}

// sizeFor computes round_down(notional_usd/mid, size_increment), clamped to
// min_notional (§4.5 last bullet).
func (c *Calculator) sizeFor(mid float64) decimal.Decimal {
	if mid <= 0 {
		return decimal.Zero
	}
	raw := decimal.NewFromFloat(c.cfg.NotionalUSD / mid)
	size := c.trading.RoundSizeDown(raw)
	notional := size.Mul(decimal.NewFromFloat(mid))
	if notional.LessThan(c.trading.MinNotional) {
		return decimal.Zero
	}
	return size
}

// rejectReason implements §4.5's rejection list, returning "" when none
// apply.
func (c *Calculator) rejectReason(snap state.View, now time.Time) string {
	if snap.Sigma == nil || *snap.Sigma <= 0 {
		return "sigma is unset or non-positive"
	}
	if snap.Kappa == nil || *snap.Kappa <= 0 {
		return "kappa is unset or non-positive"
	}
	if snap.Mid.LessThanOrEqual(decimal.Zero) {
		return "mid is non-positive"
	}
	if snap.BestBid.GreaterThanOrEqual(snap.BestAsk) {
		return "best_bid >= best_ask"
	}
	if snap.LastEstimationTS.IsZero() {
		return "no estimation has run yet"
	}
	// Staleness is judged against the book, not the estimation pass: the
	// OrderManager already enforces MaxStaleMillis on its own, faster
	// cadence (§4.1, §4.9 S3); this is a second, slower-cadence guard
	// against publishing new quotes off a mid the feed stopped updating.
	if snap.LastBookUpdateTS.IsZero() || now.Sub(snap.LastBookUpdateTS).Milliseconds() > c.cfg.MaxStaleMillis {
		return "book is stale"
	}
	return ""
}
