package api

import (
	"time"

	"perp-mm/internal/state"
)

// Snapshot is the read-only JSON view of BotState served at /api/snapshot
// and pushed over the dashboard WebSocket. It mirrors state.View, bound by
// the same reader-lock discipline: Snapshot() takes the state lock only
// long enough to copy fields out (§5).
type Snapshot struct {
	Mid         string `json:"mid"`
	BestBid     string `json:"best_bid"`
	BestAsk     string `json:"best_ask"`
	Sequence    uint64 `json:"sequence"`
	StaleSource string `json:"stale_source,omitempty"`

	Sigma *float64 `json:"sigma,omitempty"`
	Kappa *float64 `json:"kappa,omitempty"`

	DesiredBid *QuoteView `json:"desired_bid,omitempty"`
	DesiredAsk *QuoteView `json:"desired_ask,omitempty"`
	LiveBid    *OrderView `json:"live_bid,omitempty"`
	LiveAsk    *OrderView `json:"live_ask,omitempty"`

	InventoryQ string `json:"inventory_q"`
	EquityUSD  string `json:"equity_usd"`

	PingPongEnabled bool   `json:"ping_pong_enabled"`
	PingPongMode    string `json:"ping_pong_mode"`

	RunGeneration uint64    `json:"run_generation"`
	ServerTime    time.Time `json:"server_time"`
}

type QuoteView struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type OrderView struct {
	OrderID  string    `json:"order_id"`
	Price    string    `json:"price"`
	Size     string    `json:"size"`
	PlacedTS time.Time `json:"placed_ts"`
}

// BuildSnapshot converts a BotState view into its JSON-serializable form.
func BuildSnapshot(v state.View) Snapshot {
	s := Snapshot{
		Mid:             v.Mid.String(),
		BestBid:         v.BestBid.String(),
		BestAsk:         v.BestAsk.String(),
		Sequence:        v.Sequence,
		StaleSource:     v.StaleSource,
		Sigma:           v.Sigma,
		Kappa:           v.Kappa,
		InventoryQ:      v.InventoryQ.String(),
		EquityUSD:       v.EquityUSD.String(),
		PingPongEnabled: v.PingPong.Enabled,
		PingPongMode:    string(v.PingPong.Mode),
		RunGeneration:   v.RunGeneration,
		ServerTime:      time.Now(),
	}
	if v.DesiredBid != nil {
		s.DesiredBid = &QuoteView{Price: v.DesiredBid.Price.String(), Size: v.DesiredBid.Size.String()}
	}
	if v.DesiredAsk != nil {
		s.DesiredAsk = &QuoteView{Price: v.DesiredAsk.Price.String(), Size: v.DesiredAsk.Size.String()}
	}
	if v.LiveBid != nil {
		s.LiveBid = &OrderView{OrderID: v.LiveBid.OrderID, Price: v.LiveBid.Price.String(), Size: v.LiveBid.Size.String(), PlacedTS: v.LiveBid.PlacedTS}
	}
	if v.LiveAsk != nil {
		s.LiveAsk = &OrderView{OrderID: v.LiveAsk.OrderID, Price: v.LiveAsk.Price.String(), Size: v.LiveAsk.Size.String(), PlacedTS: v.LiveAsk.PlacedTS}
	}
	return s
}
