package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"perp-mm/pkg/types"
)

const (
	userPingInterval = 15 * time.Second
	userReadTimeout  = 30 * time.Second
	userWriteTimeout = 10 * time.Second
	userInitialBackoff = 100 * time.Millisecond
	userMaxBackoff     = 30 * time.Second
	userChannelSize    = 256
)

// UserFeed is the authenticated account.orders/account.trades/account.balance
// channel. It auto-reconnects with the same backoff policy as the market
// feed (§4.1) and exposes typed, buffered event channels to FillHandler.
type UserFeed struct {
	url      string
	authHdr  string
	market   types.MarketID
	logger   *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	orderCh   chan types.UserOrderEvent
	balanceCh chan types.BalanceEvent
}

func NewUserFeed(wsURL, authHeader string, market types.MarketID, logger *slog.Logger) *UserFeed {
	return &UserFeed{
		url:       wsURL,
		authHdr:   authHeader,
		market:    market,
		logger:    logger.With("component", "user_feed"),
		orderCh:   make(chan types.UserOrderEvent, userChannelSize),
		balanceCh: make(chan types.BalanceEvent, userChannelSize),
	}
}

func (f *UserFeed) OrderEvents() <-chan types.UserOrderEvent { return f.orderCh }
func (f *UserFeed) BalanceEvents() <-chan types.BalanceEvent { return f.balanceCh }

// Run maintains the connection until ctx is cancelled, reconnecting with
// exponential backoff (100ms -> 30s, §4.1).
func (f *UserFeed) Run(ctx context.Context) error {
	backoff := userInitialBackoff
	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("user feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > userMaxBackoff {
			backoff = userMaxBackoff
		}
	}
}

func (f *UserFeed) connectAndRead(ctx context.Context) error {
	header := make(map[string][]string)
	if f.authHdr != "" {
		header["Authorization"] = []string{f.authHdr}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	subMsg := struct {
		Operation string   `json:"operation"`
		Markets   []string `json:"markets"`
	}{Operation: "subscribe", Markets: []string{string(f.market)}}
	if err := f.writeJSON(subMsg); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(userReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		f.dispatch(ctx, msg)
	}
}

func (f *UserFeed) dispatch(ctx context.Context, data []byte) {
	var envelope struct {
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("ignoring non-json user feed message")
		return
	}

	switch envelope.Channel {
	case "account.orders":
		var wire wireUserOrderEvent
		if err := json.Unmarshal(data, &wire); err != nil {
			f.logger.Error("unmarshal order event", "error", err)
			return
		}
		evt, err := wire.toTyped()
		if err != nil {
			f.logger.Error("decode order event", "error", err)
			return
		}
		// Order events carry fills: block until the consumer takes the event
		// rather than drop it.
		select {
		case f.orderCh <- evt:
		case <-ctx.Done():
		}
	case "account.balance":
		var wire wireBalanceEvent
		if err := json.Unmarshal(data, &wire); err != nil {
			f.logger.Error("unmarshal balance event", "error", err)
			return
		}
		evt, err := wire.toTyped()
		if err != nil {
			f.logger.Error("decode balance event", "error", err)
			return
		}
		select {
		case f.balanceCh <- evt:
		default:
			f.logger.Warn("balance event channel full, dropping event")
		}
	default:
		f.logger.Debug("ignoring unrecognized user feed channel", "channel", envelope.Channel)
	}
}

func (f *UserFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(userPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.connMu.Lock()
			conn := f.conn
			f.connMu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(userWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *UserFeed) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("user feed not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(userWriteTimeout))
	return f.conn.WriteJSON(v)
}
