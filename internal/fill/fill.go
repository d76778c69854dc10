// Package fill implements the FillHandler (§4.7): it drains the
// authenticated account.orders stream and applies fills, cancels, and
// rejections to BotState, waking the OrderManager so a ping-pong flip or
// inventory change is acted on without waiting out the reconcile cadence.
package fill

import (
	"context"
	"log/slog"

	"perp-mm/internal/metrics"
	"perp-mm/internal/state"
	"perp-mm/pkg/types"
)

// orderWaker lets the OrderManager react immediately to a fill instead of
// waiting for its next reconcile tick.
type orderWaker interface {
	Wake()
}

// Handler consumes types.UserOrderEvent values and applies them to state.
type Handler struct {
	events <-chan types.UserOrderEvent
	st     *state.State
	mgr    orderWaker
	logger *slog.Logger
}

func New(events <-chan types.UserOrderEvent, st *state.State, mgr orderWaker, logger *slog.Logger) *Handler {
	return &Handler{events: events, st: st, mgr: mgr, logger: logger.With("component", "fill_handler")}
}

// Run drains events until the channel closes or ctx is cancelled. The
// upstream channel is correctness-critical (§5 Channels): full buffer
// applies backpressure to the feed rather than dropping a fill.
func (h *Handler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-h.events:
			if !ok {
				return nil
			}
			h.handle(evt)
		}
	}
}

func (h *Handler) handle(evt types.UserOrderEvent) {
	switch evt.Kind {
	case types.EventOrderFilled:
		h.handleFilled(evt)
	case types.EventOrderCanceled:
		h.st.ClearLiveOrder(evt.Side)
		h.logger.Info("order canceled", "order_id", evt.OrderID, "side", evt.Side)
	case types.EventOrderRejected:
		h.st.ClearLiveOrder(evt.Side)
		h.logger.Warn("order rejected", "order_id", evt.OrderID, "side", evt.Side, "reason", evt.Reason)
	default:
		h.logger.Debug("unhandled user event kind", "kind", evt.Kind)
	}
}

// handleFilled applies §4.7 steps 1-2 atomically via state.ApplyFill, then
// wakes the OrderManager (step 3). No retry on reject: the OrderManager's
// next tick re-evaluates against the now-current state.
func (h *Handler) handleFilled(evt types.UserOrderEvent) {
	remainingZero := evt.RemainingQty.Sign() == 0
	gen := h.st.ApplyFill(evt.Side, evt.FilledQty, remainingZero)
	metrics.Fills.WithLabelValues(string(evt.Side)).Inc()
	h.logger.Info("fill applied", "order_id", evt.OrderID, "side", evt.Side,
		"filled_qty", evt.FilledQty.String(), "remaining_qty", evt.RemainingQty.String(),
		"generation", gen)
	h.mgr.Wake()
}
