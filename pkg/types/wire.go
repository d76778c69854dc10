package types

import "github.com/shopspring/decimal"

// This file defines the external wire contracts from §6: REST request/
// response bodies and WebSocket event payloads. The byte-level codec is an
// out-of-scope collaborator (§1) — these are the typed shapes the core
// consumes, independent of whatever transport encodes them.

// ————————————————————————————————————————————————————————————————————————
// WebSocket market-data channel: orderbook/{m}, trades/{m}
// ————————————————————————————————————————————————————————————————————————

// WSMessageKind discriminates the feed envelope.
type WSMessageKind string

const (
	KindSnapshot WSMessageKind = "SNAPSHOT"
	KindDelta    WSMessageKind = "DELTA"
	KindTrade    WSMessageKind = "TRADE"
	KindHeartbeat WSMessageKind = "HEARTBEAT"
)

// BookSnapshotMsg is the authoritative full book sent on (re)subscribe.
type BookSnapshotMsg struct {
	Market   MarketID
	Sequence uint64
	Bids     []PriceLevel
	Asks     []PriceLevel
	TSMillis int64
}

// BookDeltaMsg carries incremental level replacements keyed by Sequence.
// A size of zero removes the level (§4.1 merge rule).
type BookDeltaMsg struct {
	Market   MarketID
	Sequence uint64
	Side     Side
	Price    decimal.Decimal
	Size     decimal.Decimal
	TSMillis int64
}

// TradeMsg is a public tape print.
type TradeMsg struct {
	Market    MarketID
	TradeID   string
	Price     decimal.Decimal
	Qty       decimal.Decimal
	Aggressor Side
	TSMillis  int64
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket authenticated channels: account.orders, account.trades, account.balance
// ————————————————————————————————————————————————————————————————————————

// UserOrderEvent reports the lifecycle of one of our own orders.
type UserOrderEvent struct {
	Kind         UserEventKind
	OrderID      string
	Side         Side
	FilledQty    decimal.Decimal
	RemainingQty decimal.Decimal
	Price        decimal.Decimal
	Reason       string // set on OrderRejected
	TSMillis     int64
}

// UserEventKind discriminates account.orders events.
type UserEventKind string

const (
	EventOrderFilled   UserEventKind = "ORDER_FILLED"
	EventOrderCanceled UserEventKind = "ORDER_CANCELED"
	EventOrderRejected UserEventKind = "ORDER_REJECTED"
)

// BalanceEvent reports an account.balance push.
type BalanceEvent struct {
	EquityUSD decimal.Decimal
	TSMillis  int64
}

// ————————————————————————————————————————————————————————————————————————
// REST: order placement / cancellation (§6)
// ————————————————————————————————————————————————————————————————————————

// SignatureRS is the opaque signing-oracle output: sign(order_fields) -> (r,s).
type SignatureRS struct {
	R string
	S string
}

// OrderFields is exactly what the signing oracle consumes — never logged
// (§9 forbids logging oracle inputs).
type OrderFields struct {
	Market               MarketID
	Side                 Side
	Price                decimal.Decimal
	SyntheticAmount      int64 // scaled by SyntheticResolution
	CollateralAmount     int64 // scaled by CollateralResolution
	FeeRate              decimal.Decimal
	NonceSeconds         int64
	ExpirySeconds         int64
	ChainID              ChainID
	VaultID              string
	StarkPublicKey       string
}

// PlaceOrderRequest is the POST /orders body.
type PlaceOrderRequest struct {
	Market        MarketID    `json:"market"`
	Side          Side        `json:"side"`
	Type          OrderType   `json:"type"`
	Price         string      `json:"price"`
	Qty           string      `json:"qty"`
	TimeInForce   TimeInForce `json:"time_in_force"`
	ReduceOnly    bool        `json:"reduce_only"`
	Nonce         int64       `json:"nonce"`
	ClientOrderID string      `json:"client_order_id"`
	Signature     SignatureRS `json:"signature"`
	StarkPublicKey string     `json:"stark_public_key"`
	VaultID       string      `json:"vault_id"`
	Fee           FeeField    `json:"fee"`
	ExpirySeconds int64       `json:"expiry_sec"`
}

// FeeField is the fee rate (never an amount) carried on the order.
type FeeField struct {
	Rate string `json:"rate"`
}

// PlaceOrderResponse is the venue's ack for POST /orders.
type PlaceOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// OrderBookRESTResponse is the GET /orderbook/{m} shape used by the backup
// poller.
type OrderBookRESTResponse struct {
	Market MarketID     `json:"market"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
}

// MarketConfigResponse is the GET /markets/{m}/config shape.
type MarketConfigResponse struct {
	Market               MarketID `json:"market"`
	TickSize             string   `json:"tick_size"`
	SizeIncrement        string   `json:"size_increment"`
	MinNotional          string   `json:"min_notional"`
	CollateralResolution int32    `json:"collateral_resolution"`
	SyntheticResolution  int32    `json:"synthetic_resolution"`
	TakerFeeRateBps      int32    `json:"taker_fee_rate_bps"`
}

// AccountPositionResponse is the GET /positions shape, used to reconcile
// inventory on startup and periodically (§3 Inventory q).
type AccountPositionResponse struct {
	Market MarketID `json:"market"`
	Qty    string   `json:"qty"`
}

// AccountBalanceResponse is the GET /balance shape.
type AccountBalanceResponse struct {
	EquityUSD string `json:"equity_usd"`
}
