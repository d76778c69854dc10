// Package exchange implements the venue's REST and authenticated WebSocket
// clients (§6): order placement/cancellation, book/account reads, and the
// account.orders/account.trades/account.balance event stream. Every
// mutating REST call is rate-limited per category, wrapped in a circuit
// breaker that trips on sustained 5xx/transient failure, and signed via the
// pluggable signing oracle (internal/signer).
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"

	"perp-mm/internal/mmerr"
	"perp-mm/internal/signer"
	"perp-mm/pkg/types"
)

// Client is the venue's REST API client.
type Client struct {
	http    *resty.Client
	rl      *RateLimiter
	breaker *gobreaker.CircuitBreaker[any]
	oracle  signer.Oracle
	dryRun  bool
	logger  *slog.Logger
}

// Config carries the fields NewClient needs from internal/config.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	DryRun         bool
}

func NewClient(cfg Config, oracle signer.Oracle, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.RequestTimeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	breakerSettings := gobreaker.Settings{
		Name:        "venue-rest",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &Client{
		http:    httpClient,
		rl:      NewRateLimiter(),
		breaker: gobreaker.NewCircuitBreaker[any](breakerSettings),
		oracle:  oracle,
		dryRun:  cfg.DryRun,
		logger:  logger,
	}
}

// do runs fn through the circuit breaker, translating a tripped breaker
// into a Fatal error per §7 (sustained 5xx escalates past Transient).
func (c *Client) do(op string, fn func() (any, error)) (any, error) {
	result, err := c.breaker.Execute(fn)
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, mmerr.Fatal(op, fmt.Errorf("circuit breaker open: %w", err))
		}
		return nil, err
	}
	return result, nil
}

// GetOrderBook fetches the authoritative book for a market — used by the
// backup poller (§4.9).
func (c *Client) GetOrderBook(ctx context.Context, market types.MarketID) (*types.OrderBookRESTResponse, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, mmerr.Transient("get_order_book", err)
	}
	res, err := c.do("get_order_book", func() (any, error) {
		var result types.OrderBookRESTResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&result).
			Get(fmt.Sprintf("/orderbook/%s", market))
		if err != nil {
			return nil, mmerr.Transient("get_order_book", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, mmerr.Transient("get_order_book", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
		}
		return &result, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*types.OrderBookRESTResponse), nil
}

// GetMarketConfig fetches the static per-market trading config.
func (c *Client) GetMarketConfig(ctx context.Context, market types.MarketID) (*types.MarketConfigResponse, error) {
	if err := c.rl.Config.Wait(ctx); err != nil {
		return nil, mmerr.Transient("get_market_config", err)
	}
	res, err := c.do("get_market_config", func() (any, error) {
		var result types.MarketConfigResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&result).
			Get(fmt.Sprintf("/markets/%s/config", market))
		if err != nil {
			return nil, mmerr.Transient("get_market_config", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, mmerr.Transient("get_market_config", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
		}
		return &result, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*types.MarketConfigResponse), nil
}

// GetPosition fetches the venue's reported inventory for a market (startup
// and periodic reconciliation, §3).
func (c *Client) GetPosition(ctx context.Context, market types.MarketID) (*types.AccountPositionResponse, error) {
	if err := c.rl.Account.Wait(ctx); err != nil {
		return nil, mmerr.Transient("get_position", err)
	}
	res, err := c.do("get_position", func() (any, error) {
		var result types.AccountPositionResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("market", string(market)).
			SetResult(&result).
			Get("/positions")
		if err != nil {
			return nil, mmerr.Transient("get_position", err)
		}
		if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
			return nil, mmerr.Auth("get_position", fmt.Errorf("status %d", resp.StatusCode()))
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, mmerr.Transient("get_position", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
		}
		return &result, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*types.AccountPositionResponse), nil
}

// GetBalance fetches the venue's reported account equity.
func (c *Client) GetBalance(ctx context.Context) (*types.AccountBalanceResponse, error) {
	if err := c.rl.Account.Wait(ctx); err != nil {
		return nil, mmerr.Transient("get_balance", err)
	}
	res, err := c.do("get_balance", func() (any, error) {
		var result types.AccountBalanceResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&result).
			Get("/balance")
		if err != nil {
			return nil, mmerr.Transient("get_balance", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, mmerr.Transient("get_balance", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
		}
		return &result, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*types.AccountBalanceResponse), nil
}

// PlaceOrder signs and submits a single quote, returning the venue's
// assigned order id. clientOrderID must already encode generation/side/nonce
// (types.ClientOrderID, §4.6) for idempotent retries.
func (c *Client) PlaceOrder(ctx context.Context, quote types.Quote, fields types.OrderFields, clientOrderID string) (*types.PlaceOrderResponse, error) {
	if c.dryRun {
		c.logger.Info("dry-run: would place order", "side", quote.Side, "price", quote.Price.String(), "size", quote.Size.String(), "client_order_id", clientOrderID)
		return &types.PlaceOrderResponse{OrderID: "dry-run-" + clientOrderID, Status: "LIVE"}, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, mmerr.Transient("place_order", err)
	}

	sig, err := c.oracle.Sign(ctx, fields)
	if err != nil {
		return nil, mmerr.Fatal("place_order", fmt.Errorf("sign order: %w", err))
	}

	body := types.PlaceOrderRequest{
		Market:         fields.Market,
		Side:           quote.Side,
		Type:           types.OrderTypeLimit,
		Price:          quote.Price.String(),
		Qty:            quote.Size.String(),
		TimeInForce:    types.TIFGTC,
		ReduceOnly:     false,
		Nonce:          fields.NonceSeconds,
		ClientOrderID:  clientOrderID,
		Signature:      sig,
		StarkPublicKey: fields.StarkPublicKey,
		VaultID:        fields.VaultID,
		Fee:            types.FeeField{Rate: fields.FeeRate.String()},
		ExpirySeconds:  fields.ExpirySeconds,
	}

	res, err := c.do("place_order", func() (any, error) {
		var result types.PlaceOrderResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(&result).
			Post("/orders")
		if err != nil {
			return nil, mmerr.Transient("place_order", err)
		}
		switch resp.StatusCode() {
		case http.StatusOK, http.StatusCreated:
			return &result, nil
		case http.StatusTooManyRequests:
			return nil, mmerr.NewRateLimited("place_order", retryAfter(resp), fmt.Errorf("status 429"))
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, mmerr.Auth("place_order", fmt.Errorf("status %d", resp.StatusCode()))
		default:
			return nil, mmerr.Transient("place_order", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
		}
	})
	if err != nil {
		return nil, err
	}
	return res.(*types.PlaceOrderResponse), nil
}

// CancelOrder cancels one live order by venue-assigned id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if c.dryRun {
		c.logger.Info("dry-run: would cancel order", "order_id", orderID)
		return nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return mmerr.Transient("cancel_order", err)
	}
	_, err := c.do("cancel_order", func() (any, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			Delete(fmt.Sprintf("/orders/%s", orderID))
		if err != nil {
			return nil, mmerr.Transient("cancel_order", err)
		}
		if resp.StatusCode() == http.StatusNotFound {
			// Already gone (filled/canceled elsewhere); not an error for our purposes.
			return nil, nil
		}
		if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
			return nil, mmerr.Transient("cancel_order", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
		}
		return nil, nil
	})
	return err
}

// CancelAllForPrefix sweeps every order whose client-order-id carries the
// bot's prefix. Used by the Supervisor on unexpected task death and on
// graceful shutdown (§4.8).
func (c *Client) CancelAllForPrefix(ctx context.Context, prefix string) error {
	if c.dryRun {
		c.logger.Info("dry-run: would sweep-cancel orders", "prefix", prefix)
		return nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return mmerr.Transient("cancel_all_for_prefix", err)
	}
	_, err := c.do("cancel_all_for_prefix", func() (any, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("client_order_id_prefix", prefix).
			Delete("/orders")
		if err != nil {
			return nil, mmerr.Transient("cancel_all_for_prefix", err)
		}
		if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
			return nil, mmerr.Transient("cancel_all_for_prefix", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
		}
		return nil, nil
	})
	return err
}

// PollOrder polls the venue for an order's status, used by the OrderManager
// after a network timeout before retrying a place (§4.6, up to 5s).
func (c *Client) PollOrder(ctx context.Context, clientOrderID string) (*types.PlaceOrderResponse, error) {
	res, err := c.do("poll_order", func() (any, error) {
		var result types.PlaceOrderResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("client_order_id", clientOrderID).
			SetResult(&result).
			Get("/orders/by-client-id")
		if err != nil {
			return nil, mmerr.Transient("poll_order", err)
		}
		if resp.StatusCode() == http.StatusNotFound {
			return nil, mmerr.New(mmerr.ClassTransient, "poll_order", fmt.Errorf("not found yet"))
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, mmerr.Transient("poll_order", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
		}
		return &result, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*types.PlaceOrderResponse), nil
}

func retryAfter(resp *resty.Response) time.Duration {
	header := resp.Header().Get("Retry-After")
	if header == "" {
		return time.Second
	}
	var secs int
	if _, err := fmt.Sscanf(header, "%d", &secs); err != nil || secs <= 0 {
		return time.Second
	}
	return time.Duration(secs) * time.Second
}
