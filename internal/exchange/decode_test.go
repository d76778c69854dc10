package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestWireUserOrderEventToTyped(t *testing.T) {
	w := wireUserOrderEvent{
		Kind:         "ORDER_FILLED",
		OrderID:      "abc",
		Side:         "BUY",
		FilledQty:    "1.5",
		RemainingQty: "0",
		Price:        "3000.25",
		TSMillis:     1000,
	}
	evt, err := w.toTyped()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.OrderID != "abc" || !evt.FilledQty.Equal(decimal.NewFromFloat(1.5)) {
		t.Fatalf("unexpected decode: %+v", evt)
	}
	if evt.RemainingQty.Sign() != 0 {
		t.Fatalf("expected zero remaining qty, got %s", evt.RemainingQty)
	}
}

func TestWireBalanceEventToTyped(t *testing.T) {
	w := wireBalanceEvent{EquityUSD: "12345.67", TSMillis: 2000}
	evt, err := w.toTyped()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !evt.EquityUSD.Equal(decimal.NewFromFloat(12345.67)) {
		t.Fatalf("unexpected decode: %+v", evt)
	}
}

func TestWireUserOrderEventRejectsMalformedDecimal(t *testing.T) {
	w := wireUserOrderEvent{FilledQty: "not-a-number"}
	if _, err := w.toTyped(); err == nil {
		t.Fatalf("expected error for malformed decimal")
	}
}
