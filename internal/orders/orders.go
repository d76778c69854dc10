// Package orders implements the OrderManager (§4.6): the reconcile loop
// that turns BotState.desired_quotes into {None, Place, Replace, Cancel}
// actions per side, respects ping-pong restriction, and enforces idempotent,
// recoverable order placement via nonce-derived client-order-ids.
package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"perp-mm/internal/exchange"
	"perp-mm/internal/metrics"
	"perp-mm/internal/nonce"
	"perp-mm/internal/state"
	"perp-mm/pkg/types"
)

// Action is the per-side decision computed each reconcile tick.
type Action string

const (
	ActionNone    Action = "NONE"
	ActionPlace   Action = "PLACE"
	ActionReplace Action = "REPLACE"
	ActionCancel  Action = "CANCEL"
)

// Config tunes the reconcile loop.
type Config struct {
	RefreshInterval       time.Duration
	RepricingThresholdBps float64
	ForceReplaceInterval  time.Duration
	PollTimeout           time.Duration // poll-before-retry budget on network timeout (default 5s)
	MaxStaleMillis        int64         // cancel all live quotes once the book is older than this (§4.1, §4.9 S3)
	TradingEnabled        bool          // false suppresses order placement while still allowing cancels
}

// Manager drives the OrderManager loop. It talks to the venue through the
// exchange.Client and signs orders via the pluggable Oracle.
type Manager struct {
	cfg     Config
	trading types.TradingConfig
	st      *state.State
	client  *exchange.Client
	nonces  *nonce.Service
	logger  *slog.Logger
	wake    chan struct{}
}

func New(cfg Config, trading types.TradingConfig, st *state.State, client *exchange.Client, nonces *nonce.Service, logger *slog.Logger) *Manager {
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	return &Manager{cfg: cfg, trading: trading, st: st, client: client, nonces: nonces, logger: logger.With("component", "order_manager"), wake: make(chan struct{}, 1)}
}

// Wake schedules an out-of-cadence reconcile pass, used by the fill handler
// so a ping-pong mode flip or inventory change is acted on immediately
// instead of waiting out the rest of RefreshInterval.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run ticks every RefreshInterval until ctx is cancelled, or immediately on Wake.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx)
		case <-m.wake:
			m.Tick(ctx)
		}
	}
}

// Tick runs one reconcile pass across both sides (§4.6 steps 1-4). Book
// staleness is checked first, on this loop's cadence rather than the
// SpreadCalculator's, so a feed gap is cancelled out within MaxStaleMillis
// instead of waiting out the much longer spread-recompute interval (§4.1,
// §4.9 S3).
func (m *Manager) Tick(ctx context.Context) {
	snap := m.st.Snapshot()

	if m.bookIsStale(snap) {
		m.cancelStale(ctx, snap)
		return
	}

	sides := []types.Side{types.Buy, types.Sell}
	if snap.PingPong.Enabled {
		sides = m.pingPongSides(snap)
	}

	for _, side := range sides {
		m.actOnSide(ctx, side, snap)
	}
}

func (m *Manager) bookIsStale(snap state.View) bool {
	if m.cfg.MaxStaleMillis <= 0 {
		return false
	}
	if snap.LastBookUpdateTS.IsZero() {
		return true
	}
	return time.Since(snap.LastBookUpdateTS).Milliseconds() > m.cfg.MaxStaleMillis
}

// cancelStale cancels any resting quotes on a stale book, bypassing the
// normal decide() path since desired_quotes may still reflect the last-good
// mid (the SpreadCalculator only clears them on its own, slower cadence).
func (m *Manager) cancelStale(ctx context.Context, snap state.View) {
	for _, side := range []types.Side{types.Buy, types.Sell} {
		live := m.liveOrderFor(side, snap)
		if live == nil {
			continue
		}
		if !m.st.TryBeginAction(side) {
			continue
		}
		m.cancelSide(ctx, side, live)
		m.st.EndAction(side)
	}
}

// pingPongSides restricts action to the side ping-pong mode allows, canceling
// the other side first (§4.6 step 3).
func (m *Manager) pingPongSides(snap state.View) []types.Side {
	var allowed, other types.Side
	switch snap.PingPong.Mode {
	case types.ModeNeedBuy:
		allowed, other = types.Buy, types.Sell
	case types.ModeNeedSell:
		allowed, other = types.Sell, types.Buy
	default:
		return nil
	}
	if live := m.liveOrderFor(other, snap); live != nil {
		m.cancelSide(context.Background(), other, live)
	}
	return []types.Side{allowed}
}

func (m *Manager) liveOrderFor(side types.Side, snap state.View) *types.LiveOrder {
	if side == types.Buy {
		return snap.LiveBid
	}
	return snap.LiveAsk
}

func (m *Manager) desiredFor(side types.Side, snap state.View) *types.Quote {
	if side == types.Buy {
		return snap.DesiredBid
	}
	return snap.DesiredAsk
}

// decide computes the action for one side per §4.6 step 2.
func (m *Manager) decide(side types.Side, snap state.View, now time.Time) Action {
	desired := m.desiredFor(side, snap)
	live := m.liveOrderFor(side, snap)

	if desired == nil {
		if live != nil {
			return ActionCancel
		}
		return ActionNone
	}
	if live == nil {
		return ActionPlace
	}

	mid := snap.Mid
	if mid.IsZero() {
		return ActionNone
	}
	priceDrift := live.Price.Sub(desired.Price).Abs().Div(mid)
	threshold := decimal.NewFromFloat(m.cfg.RepricingThresholdBps * 1e-4)

	if priceDrift.GreaterThanOrEqual(threshold) {
		return ActionReplace
	}
	if now.Sub(live.PlacedTS) >= m.cfg.ForceReplaceInterval {
		return ActionReplace
	}
	if desired.Generation > live.Generation {
		return ActionReplace
	}
	return ActionNone
}

func (m *Manager) actOnSide(ctx context.Context, side types.Side, snap state.View) {
	if !m.st.TryBeginAction(side) {
		return // an action is already in flight on this side this tick
	}
	defer m.st.EndAction(side)

	action := m.decide(side, snap, time.Now())
	metrics.ReconcileActions.WithLabelValues(string(side), string(action)).Inc()
	switch action {
	case ActionNone:
		return
	case ActionCancel:
		m.cancelSide(ctx, side, m.liveOrderFor(side, snap))
	case ActionPlace:
		m.placeSide(ctx, side, m.desiredFor(side, snap), snap)
	case ActionReplace:
		live := m.liveOrderFor(side, snap)
		if live != nil {
			m.cancelSide(ctx, side, live)
		}
		m.placeSide(ctx, side, m.desiredFor(side, snap), snap)
	}
}

func (m *Manager) cancelSide(ctx context.Context, side types.Side, live *types.LiveOrder) {
	if live == nil {
		return
	}
	if err := m.client.CancelOrder(ctx, live.OrderID); err != nil {
		m.logger.Warn("cancel failed", "side", side, "order_id", live.OrderID, "error", err)
		return
	}
	m.st.ClearLiveOrder(side)
}

// placeSide builds, signs, and submits one quote, with poll-before-retry on
// network timeout (§4.6 idempotence/recovery).
func (m *Manager) placeSide(ctx context.Context, side types.Side, desired *types.Quote, snap state.View) {
	if desired == nil {
		return
	}
	if !m.cfg.TradingEnabled {
		return
	}
	n, err := m.nonces.Next()
	if err != nil {
		m.logger.Error("nonce exhausted", "side", side, "error", err)
		return
	}

	clientOrderID := types.ClientOrderID(desired.Generation, side, n)
	fields := types.OrderFields{
		Market:           m.trading.Market,
		Side:             side,
		Price:            desired.Price,
		SyntheticAmount:  scaledAmount(desired.Size, m.trading.SyntheticResolution),
		CollateralAmount: scaledAmount(desired.Price.Mul(desired.Size), m.trading.CollateralResolution),
		NonceSeconds:     n,
		ExpirySeconds:    time.Now().Add(24 * time.Hour).Unix(),
		VaultID:          m.trading.VaultID,
		StarkPublicKey:   m.trading.StarkPublicKey,
	}

	resp, err := m.client.PlaceOrder(ctx, *desired, fields, clientOrderID)
	if err != nil {
		if recovered := m.pollAfterTimeout(ctx, clientOrderID); recovered != nil {
			resp = recovered
		} else {
			m.logger.Warn("place failed", "side", side, "error", err)
			return
		}
	}

	m.st.SetLiveOrder(side, &types.LiveOrder{
		OrderID:    resp.OrderID,
		Side:       side,
		Price:      desired.Price,
		Size:       desired.Size,
		PlacedTS:   time.Now(),
		Nonce:      n,
		Generation: desired.Generation,
	})
}

// pollAfterTimeout polls the venue for up to PollTimeout for a previously
// submitted client-order-id, recovering from a place call that timed out on
// the client side but may have succeeded on the venue (§4.6).
func (m *Manager) pollAfterTimeout(ctx context.Context, clientOrderID string) *types.PlaceOrderResponse {
	deadline := time.Now().Add(m.cfg.PollTimeout)
	for time.Now().Before(deadline) {
		resp, err := m.client.PollOrder(ctx, clientOrderID)
		if err == nil {
			return resp
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(250 * time.Millisecond):
		}
	}
	return nil
}

func scaledAmount(amount decimal.Decimal, resolution int32) int64 {
	scaled := amount.Shift(resolution).Floor()
	v, _ := scaled.Float64()
	return int64(v)
}
