package exchange

import (
	"golang.org/x/time/rate"
)

// RateLimiter groups per-category token-bucket limiters for the venue's
// published REST rate limits, mirroring the resting-order venue's
// documented per-endpoint caps (§6, §7 RateLimited class).
type RateLimiter struct {
	Order  *rate.Limiter // POST /orders
	Cancel *rate.Limiter // DELETE /orders/{id}
	Book   *rate.Limiter // GET /orderbook/{m}
	Config *rate.Limiter // GET /markets/{m}/config
	Account *rate.Limiter // GET /account, /positions, /balance
}

// NewRateLimiter builds conservative default limits; burst is roughly a
// third of the per-second rate to tolerate bursty reconcile/backup-poll
// traffic.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Order:   rate.NewLimiter(rate.Limit(35), 10),
		Cancel:  rate.NewLimiter(rate.Limit(30), 10),
		Book:    rate.NewLimiter(rate.Limit(15), 5),
		Config:  rate.NewLimiter(rate.Limit(5), 2),
		Account: rate.NewLimiter(rate.Limit(10), 3),
	}
}
