package exchange

import (
	"github.com/shopspring/decimal"

	"perp-mm/pkg/types"
)

// wireUserOrderEvent is the account.orders push shape; kept separate from
// types.UserOrderEvent so the domain type stays free of json tags (the
// exchange package owns the wire format, same split as internal/feed).
type wireUserOrderEvent struct {
	Kind         string `json:"kind"`
	OrderID      string `json:"order_id"`
	Side         string `json:"side"`
	FilledQty    string `json:"filled_qty"`
	RemainingQty string `json:"remaining_qty"`
	Price        string `json:"price"`
	Reason       string `json:"reason"`
	TSMillis     int64  `json:"ts_ms"`
}

func (w wireUserOrderEvent) toTyped() (types.UserOrderEvent, error) {
	filled, err := decimal.NewFromString(zeroIfEmpty(w.FilledQty))
	if err != nil {
		return types.UserOrderEvent{}, err
	}
	remaining, err := decimal.NewFromString(zeroIfEmpty(w.RemainingQty))
	if err != nil {
		return types.UserOrderEvent{}, err
	}
	price, err := decimal.NewFromString(zeroIfEmpty(w.Price))
	if err != nil {
		return types.UserOrderEvent{}, err
	}
	return types.UserOrderEvent{
		Kind:         types.UserEventKind(w.Kind),
		OrderID:      w.OrderID,
		Side:         types.Side(w.Side),
		FilledQty:    filled,
		RemainingQty: remaining,
		Price:        price,
		Reason:       w.Reason,
		TSMillis:     w.TSMillis,
	}, nil
}

type wireBalanceEvent struct {
	EquityUSD string `json:"equity_usd"`
	TSMillis  int64  `json:"ts_ms"`
}

func (w wireBalanceEvent) toTyped() (types.BalanceEvent, error) {
	equity, err := decimal.NewFromString(zeroIfEmpty(w.EquityUSD))
	if err != nil {
		return types.BalanceEvent{}, err
	}
	return types.BalanceEvent{EquityUSD: equity, TSMillis: w.TSMillis}, nil
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
