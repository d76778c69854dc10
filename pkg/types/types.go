// Package types defines the shared vocabulary of the market-making engine:
// market identity, order book and trade records, quotes, and the wire-level
// event shapes exchanged with the venue. It has no dependency on any other
// internal package so every layer can import it.
package types

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side is the direction of an order or fill.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType enumerates supported order lifecycles. The engine only ever
// submits GTC limit orders; MARKET is defined for completeness of the wire
// contract in §6 but never emitted by the quoting loop.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// TimeInForce mirrors the venue's accepted values.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
)

// ChainID is the signing domain for the venue's L2, per §6.
type ChainID string

const (
	ChainMainnet ChainID = "SN_MAIN"
	ChainSepolia ChainID = "SN_SEPOLIA"
)

// ————————————————————————————————————————————————————————————————————————
// Market identity (§3)
// ————————————————————————————————————————————————————————————————————————

// MarketID names a tradeable perpetual, e.g. "ETH-USD".
type MarketID string

// TradingConfig is the static, per-market configuration fetched once at
// startup from GET /markets/{m}/config and never mutated afterward.
type TradingConfig struct {
	Market               MarketID
	TickSize             decimal.Decimal // minimum price increment, USD
	SizeIncrement        decimal.Decimal // minimum size increment, base units
	MinNotional          decimal.Decimal // minimum order notional, USD
	CollateralResolution int32           // scale of collateral integer amounts
	SyntheticResolution  int32           // scale of synthetic (base asset) integer amounts
	TakerFeeRateBps      int32           // taker fee rate, basis points
	VaultID              string
	StarkPublicKey       string
}

// RoundPriceTowardMid rounds a raw price to a tick multiple, away from mid
// for the given side: BUY floors (never overpay), SELL ceilings (never
// undersell) — see §3 Quote.
func (c TradingConfig) RoundPriceTowardMid(side Side, raw decimal.Decimal) decimal.Decimal {
	if c.TickSize.IsZero() {
		return raw
	}
	quotient := raw.Div(c.TickSize)
	if side == Buy {
		return quotient.Floor().Mul(c.TickSize)
	}
	return quotient.Ceil().Mul(c.TickSize)
}

// RoundSizeDown floors a raw size to the configured size increment. Sizes are
// always rounded down regardless of side (§3, §9 open question — the
// BUY/SELL rounding asymmetry applies to price only).
func (c TradingConfig) RoundSizeDown(raw decimal.Decimal) decimal.Decimal {
	if c.SizeIncrement.IsZero() {
		return raw
	}
	return raw.Div(c.SizeIncrement).Floor().Mul(c.SizeIncrement)
}

// ————————————————————————————————————————————————————————————————————————
// Order book (§3, §4.1)
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is one resting level of an order book side.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BookSide is the set of price levels on one side of the book, keyed by
// price string to allow O(1) level replace/delete from DELTA messages.
type BookSide map[string]decimal.Decimal

// Set replaces (or removes, if size is zero) a level.
func (s BookSide) Set(price, size decimal.Decimal) {
	key := price.String()
	if size.IsZero() {
		delete(s, key)
		return
	}
	s[key] = size
}

// Levels returns the side's levels sorted best-first: descending for bids,
// ascending for asks.
func (s BookSide) Levels(descending bool) []PriceLevel {
	out := make([]PriceLevel, 0, len(s))
	for k, sz := range s {
		p, err := decimal.NewFromString(k)
		if err != nil {
			continue
		}
		out = append(out, PriceLevel{Price: p, Size: sz})
	}
	sortLevels(out, descending)
	return out
}

func sortLevels(levels []PriceLevel, descending bool) {
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0; j-- {
			var swap bool
			if descending {
				swap = levels[j].Price.GreaterThan(levels[j-1].Price)
			} else {
				swap = levels[j].Price.LessThan(levels[j-1].Price)
			}
			if !swap {
				break
			}
			levels[j], levels[j-1] = levels[j-1], levels[j]
		}
	}
}

// Best returns the best (first, by side ordering) level.
func (s BookSide) Best(descending bool) (PriceLevel, bool) {
	levels := s.Levels(descending)
	if len(levels) == 0 {
		return PriceLevel{}, false
	}
	return levels[0], true
}

// OrderBook mirrors the venue's book for one market. Bids are ordered
// descending, asks ascending. Mutated only by the feed ingestor, via
// ApplySnapshot (SNAPSHOT) and ApplyDelta (DELTA) — never read-modified
// by any other component.
type OrderBook struct {
	Market       MarketID
	Bids         BookSide
	Asks         BookSide
	Sequence     uint64
	LastUpdateTS time.Time
}

// NewOrderBook creates an empty book for a market.
func NewOrderBook(market MarketID) *OrderBook {
	return &OrderBook{
		Market: market,
		Bids:   make(BookSide),
		Asks:   make(BookSide),
	}
}

// BestBidAsk returns the top of book. ok is false if either side is empty.
func (b *OrderBook) BestBidAsk() (bid, ask decimal.Decimal, ok bool) {
	bidLevel, bidOK := b.Bids.Best(true)
	askLevel, askOK := b.Asks.Best(false)
	if !bidOK || !askOK {
		return decimal.Zero, decimal.Zero, false
	}
	return bidLevel.Price, askLevel.Price, true
}

// Mid returns (best_bid + best_ask) / 2.
func (b *OrderBook) Mid() (decimal.Decimal, bool) {
	bid, ask, ok := b.BestBidAsk()
	if !ok {
		return decimal.Zero, false
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), true
}

// Valid checks the §3 invariant best_bid < best_ask and that level sizes
// are non-negative. It does not check tick-multiple alignment, and the feed
// merger applies venue levels without checking it either.
func (b *OrderBook) Valid() bool {
	for _, side := range []BookSide{b.Bids, b.Asks} {
		for _, size := range side {
			if size.IsNegative() {
				return false
			}
		}
	}
	bid, ask, ok := b.BestBidAsk()
	if !ok {
		return true // an empty/one-sided book isn't invalid, just unusable
	}
	return bid.LessThan(ask)
}

// ————————————————————————————————————————————————————————————————————————
// Trades and the historical window (§3, §4.2)
// ————————————————————————————————————————————————————————————————————————

// Trade is a single print on the tape.
type Trade struct {
	TradeID   string
	Market    MarketID
	TSMillis  int64
	Price     decimal.Decimal
	Qty       decimal.Decimal
	Aggressor Side
}

// TopOfBookSample is a mid-price observation taken on every book update,
// used by the volatility estimator's log-return series.
type TopOfBookSample struct {
	TSMillis int64
	Mid      decimal.Decimal
	BestBid  decimal.Decimal
	BestAsk  decimal.Decimal
}

// OrderBookSnapshot is the archival record of a book state at a point in
// time, distinct from TopOfBookSample in that it is destined for the
// archive writers rather than the estimators.
type OrderBookSnapshot struct {
	Market   MarketID
	TSMillis int64
	BestBid  decimal.Decimal
	BestAsk  decimal.Decimal
	Mid      decimal.Decimal
}

// ————————————————————————————————————————————————————————————————————————
// Quotes and live orders (§3)
// ————————————————————————————————————————————————————————————————————————

// Quote is a desired (not yet live) order.
type Quote struct {
	Side            Side
	Price           decimal.Decimal
	Size            decimal.Decimal
	DesiredLifetime time.Duration
	Generation      uint64
}

// LiveOrder is a Quote that has been acknowledged by the venue.
type LiveOrder struct {
	OrderID    string
	Side       Side
	Price      decimal.Decimal
	Size       decimal.Decimal
	PlacedTS   time.Time
	Nonce      int64
	Generation uint64
}

// ClientOrderID builds the "mm-{generation}-{side}-{nonce}" client id used
// for idempotent order placement (§4.6).
func ClientOrderID(generation uint64, side Side, nonce int64) string {
	return "mm-" + strconv.FormatInt(int64(generation), 10) + "-" + string(side) + "-" + strconv.FormatInt(nonce, 10)
}

// ————————————————————————————————————————————————————————————————————————
// PingPong mode (§3)
// ————————————————————————————————————————————————————————————————————————

// PingPongMode tracks which side, if any, is allowed to be live when the
// venue forbids simultaneous two-sided quoting.
type PingPongMode string

const (
	ModeIdle    PingPongMode = "IDLE"
	ModeNeedBuy PingPongMode = "NEED_BUY"
	ModeNeedSell PingPongMode = "NEED_SELL"
)

// Flip returns the mode after a fill on the given side.
func (m PingPongMode) Flip(filledSide Side) PingPongMode {
	if filledSide == Buy {
		return ModeNeedSell
	}
	return ModeNeedBuy
}
