// Package state owns BotState, the single shared record every component
// reads and writes (§3, §5). It is protected by one reader/writer lock:
// readers may hold the lock only across field reads, writers only to
// publish pre-computed results. Per-side "action-in-flight" flags let the
// OrderManager serialize its own I/O outside the lock while still
// preventing overlapping actions on one side and closing the
// FillHandler/OrderManager TOCTOU window (§9).
package state

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"perp-mm/pkg/types"
)

// PingPong holds the venue's alternation constraint state.
type PingPong struct {
	Enabled       bool
	Mode          types.PingPongMode
	LastSwitchTS  time.Time
}

// BotState is the single shared snapshot described in §3. All fields are
// only ever mutated through State's methods.
type BotState struct {
	Mid      decimal.Decimal
	BestBid  decimal.Decimal
	BestAsk  decimal.Decimal
	Sequence uint64

	Sigma               *float64
	Kappa               *float64
	LastEstimationTS    time.Time
	StaleSource         string    // "" normally, "REST" when BackupPoller wrote Mid
	LastBookUpdateTS    time.Time // last live feed update; BackupPoller reads this to judge staleness

	DesiredBid *types.Quote
	DesiredAsk *types.Quote
	LiveBid    *types.LiveOrder
	LiveAsk    *types.LiveOrder

	InventoryQ decimal.Decimal
	EquityUSD  decimal.Decimal

	PingPong PingPong

	RunGeneration uint64
}

// State wraps a BotState behind a single RWMutex per §5.
type State struct {
	mu sync.RWMutex
	bs BotState

	// actionInFlight[side] prevents overlapping OrderManager actions on one
	// side and is checked/set under the same lock as the mode/live-order
	// reads it guards.
	actionInFlight map[types.Side]bool
}

// New creates an empty State with ping-pong disabled by default.
func New() *State {
	return &State{
		bs: BotState{
			InventoryQ: decimal.Zero,
			EquityUSD:  decimal.Zero,
			PingPong:   PingPong{Mode: types.ModeIdle},
		},
		actionInFlight: make(map[types.Side]bool),
	}
}

// View is a read-only snapshot returned by Snapshot. Taking a Snapshot
// copies scalar/pointer fields out from under the lock so callers never
// hold it across I/O.
type View struct {
	BotState
}

// Snapshot copies out the current state for read-only use.
func (s *State) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{BotState: s.bs}
}

// SetBook publishes a new mid/best_bid/best_ask/sequence from the feed
// ingestor. staleSource should be "" for live feed updates.
func (s *State) SetBook(bid, ask decimal.Decimal, sequence uint64, staleSource string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bs.BestBid = bid
	s.bs.BestAsk = ask
	s.bs.Sequence = sequence
	s.bs.Mid = bid.Add(ask).Div(decimal.NewFromInt(2))
	s.bs.StaleSource = staleSource
	s.bs.LastBookUpdateTS = time.Now()
}

// SetRESTMid publishes a mid fetched by the BackupPoller when the live feed
// has gone quiet (§4.9). It does not touch LastBookUpdateTS, so staleness
// detection keeps measuring time since the last genuine feed update, and it
// never writes to the historical window (avoiding double-counting a REST
// sample alongside feed-derived samples).
func (s *State) SetRESTMid(mid decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bs.Mid = mid
	s.bs.StaleSource = "REST"
}

// SetEstimates publishes new sigma/kappa from the volatility/kappa
// estimators. Either may be nil to leave the prior value unchanged
// (estimator rejection falls back to the prior estimate, §4.4).
func (s *State) SetEstimates(sigma, kappa *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sigma != nil {
		s.bs.Sigma = sigma
	}
	if kappa != nil {
		s.bs.Kappa = kappa
	}
	s.bs.LastEstimationTS = time.Now()
}

// SetDesiredQuotes publishes new desired bid/ask and bumps RunGeneration
// (§4.5). Either may be nil to clear that side (rejection path).
func (s *State) SetDesiredQuotes(bid, ask *types.Quote) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bs.RunGeneration++
	gen := s.bs.RunGeneration
	if bid != nil {
		bid.Generation = gen
	}
	if ask != nil {
		ask.Generation = gen
	}
	s.bs.DesiredBid = bid
	s.bs.DesiredAsk = ask
	return gen
}

// SetLiveOrder records an acknowledged order on a side, replacing any prior
// live order there.
func (s *State) SetLiveOrder(side types.Side, order *types.LiveOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if side == types.Buy {
		s.bs.LiveBid = order
	} else {
		s.bs.LiveAsk = order
	}
}

// ClearLiveOrder removes the live order on a side (cancel-ack, fill-to-zero,
// or rejection).
func (s *State) ClearLiveOrder(side types.Side) {
	s.SetLiveOrder(side, nil)
}

// ApplyFill atomically updates inventory and, when ping-pong is enabled,
// flips the mode and bumps the generation (§4.7 step 1-2). Returns the new
// generation so the caller can log it.
func (s *State) ApplyFill(side types.Side, filledQty decimal.Decimal, remainingZero bool) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if side == types.Buy {
		s.bs.InventoryQ = s.bs.InventoryQ.Add(filledQty)
	} else {
		s.bs.InventoryQ = s.bs.InventoryQ.Sub(filledQty)
	}
	if remainingZero {
		if side == types.Buy {
			s.bs.LiveBid = nil
		} else {
			s.bs.LiveAsk = nil
		}
	}

	if s.bs.PingPong.Enabled {
		s.bs.PingPong.Mode = s.bs.PingPong.Mode.Flip(side)
		s.bs.PingPong.LastSwitchTS = time.Now()
		s.bs.RunGeneration++
	}
	return s.bs.RunGeneration
}

// EnablePingPong configures ping-pong mode at startup.
func (s *State) EnablePingPong(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bs.PingPong.Enabled = enabled
	if enabled && (s.bs.PingPong.Mode == "" || s.bs.PingPong.Mode == types.ModeIdle) {
		s.bs.PingPong.Mode = types.ModeNeedBuy
	}
}

// TryBeginAction atomically checks and sets the action-in-flight flag for a
// side. Returns false if an action is already in flight on that side, in
// which case the caller must not act this tick. This is the serialization
// point that closes the FillHandler/OrderManager TOCTOU window (§9).
func (s *State) TryBeginAction(side types.Side) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.actionInFlight[side] {
		return false
	}
	s.actionInFlight[side] = true
	return true
}

// EndAction clears the action-in-flight flag for a side once the I/O for
// that action has completed (successfully or not).
func (s *State) EndAction(side types.Side) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actionInFlight[side] = false
}

// SetEquity publishes an equity update (from a balance event or periodic
// reconciliation).
func (s *State) SetEquity(equity decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bs.EquityUSD = equity
}

// ReconcileInventory overwrites inventory_q with the venue's reported
// position (startup and periodic reconciliation, §3).
func (s *State) ReconcileInventory(qty decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bs.InventoryQ = qty
}
