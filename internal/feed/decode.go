package feed

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"perp-mm/pkg/types"
)

// envelope is the common discriminator every market-data message carries.
type envelope struct {
	Kind types.WSMessageKind `json:"kind"`
}

type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type wireSnapshot struct {
	Market   types.MarketID `json:"market"`
	Sequence uint64         `json:"sequence"`
	Bids     []wireLevel    `json:"bids"`
	Asks     []wireLevel    `json:"asks"`
	TSMillis int64          `json:"ts_ms"`
}

type wireDelta struct {
	Market   types.MarketID `json:"market"`
	Sequence uint64         `json:"sequence"`
	Side     types.Side     `json:"side"`
	Price    string         `json:"price"`
	Size     string         `json:"size"`
	TSMillis int64          `json:"ts_ms"`
}

type wireTrade struct {
	Market    types.MarketID `json:"market"`
	TradeID   string         `json:"trade_id"`
	Price     string         `json:"price"`
	Qty       string         `json:"qty"`
	Aggressor types.Side     `json:"aggressor"`
	TSMillis  int64          `json:"ts_ms"`
}

// decodeMarketMessage parses one market-data frame and returns at most one
// of (snapshot, delta, trade) populated (none for a heartbeat), or an error
// for malformed JSON —
// a decode failure is a Protocol error (§7): it must never silently
// default numeric fields.
func decodeMarketMessage(data []byte) (kind types.WSMessageKind, snapshot *types.BookSnapshotMsg, delta *types.BookDeltaMsg, trade *types.TradeMsg, err error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, nil, nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Kind {
	case types.KindSnapshot:
		var w wireSnapshot
		if err := json.Unmarshal(data, &w); err != nil {
			return "", nil, nil, nil, fmt.Errorf("decode snapshot: %w", err)
		}
		msg, err := w.toTyped()
		if err != nil {
			return "", nil, nil, nil, err
		}
		return types.KindSnapshot, &msg, nil, nil, nil

	case types.KindDelta:
		var w wireDelta
		if err := json.Unmarshal(data, &w); err != nil {
			return "", nil, nil, nil, fmt.Errorf("decode delta: %w", err)
		}
		msg, err := w.toTyped()
		if err != nil {
			return "", nil, nil, nil, err
		}
		return types.KindDelta, nil, &msg, nil, nil

	case types.KindTrade:
		var w wireTrade
		if err := json.Unmarshal(data, &w); err != nil {
			return "", nil, nil, nil, fmt.Errorf("decode trade: %w", err)
		}
		msg, err := w.toTyped()
		if err != nil {
			return "", nil, nil, nil, err
		}
		return types.KindTrade, nil, nil, &msg, nil

	case types.KindHeartbeat:
		return types.KindHeartbeat, nil, nil, nil, nil

	default:
		return "", nil, nil, nil, fmt.Errorf("unknown message kind %q", env.Kind)
	}
}

func (w wireSnapshot) toTyped() (types.BookSnapshotMsg, error) {
	bids, err := decodeLevels(w.Bids)
	if err != nil {
		return types.BookSnapshotMsg{}, fmt.Errorf("decode bids: %w", err)
	}
	asks, err := decodeLevels(w.Asks)
	if err != nil {
		return types.BookSnapshotMsg{}, fmt.Errorf("decode asks: %w", err)
	}
	return types.BookSnapshotMsg{
		Market:   w.Market,
		Sequence: w.Sequence,
		Bids:     bids,
		Asks:     asks,
		TSMillis: w.TSMillis,
	}, nil
}

func (w wireDelta) toTyped() (types.BookDeltaMsg, error) {
	price, err := decimal.NewFromString(w.Price)
	if err != nil {
		return types.BookDeltaMsg{}, fmt.Errorf("parse price: %w", err)
	}
	size, err := decimal.NewFromString(w.Size)
	if err != nil {
		return types.BookDeltaMsg{}, fmt.Errorf("parse size: %w", err)
	}
	return types.BookDeltaMsg{
		Market:   w.Market,
		Sequence: w.Sequence,
		Side:     w.Side,
		Price:    price,
		Size:     size,
		TSMillis: w.TSMillis,
	}, nil
}

func (w wireTrade) toTyped() (types.TradeMsg, error) {
	price, err := decimal.NewFromString(w.Price)
	if err != nil {
		return types.TradeMsg{}, fmt.Errorf("parse price: %w", err)
	}
	qty, err := decimal.NewFromString(w.Qty)
	if err != nil {
		return types.TradeMsg{}, fmt.Errorf("parse qty: %w", err)
	}
	return types.TradeMsg{
		Market:    w.Market,
		TradeID:   w.TradeID,
		Price:     price,
		Qty:       qty,
		Aggressor: w.Aggressor,
		TSMillis:  w.TSMillis,
	}, nil
}

func decodeLevels(in []wireLevel) ([]types.PriceLevel, error) {
	out := make([]types.PriceLevel, len(in))
	for i, lvl := range in {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			return nil, err
		}
		size, err := decimal.NewFromString(lvl.Size)
		if err != nil {
			return nil, err
		}
		out[i] = types.PriceLevel{Price: price, Size: size}
	}
	return out, nil
}
