package state

import (
	"testing"

	"github.com/shopspring/decimal"

	"perp-mm/pkg/types"
)

func TestSetDesiredQuotesBumpsGeneration(t *testing.T) {
	s := New()
	bid := &types.Quote{Side: types.Buy, Price: decimal.NewFromInt(100)}
	ask := &types.Quote{Side: types.Sell, Price: decimal.NewFromInt(101)}

	gen1 := s.SetDesiredQuotes(bid, ask)
	gen2 := s.SetDesiredQuotes(bid, ask)

	if gen2 <= gen1 {
		t.Fatalf("expected generation to increase: %d -> %d", gen1, gen2)
	}
	if bid.Generation != gen2 || ask.Generation != gen2 {
		t.Fatalf("expected quotes stamped with latest generation")
	}
}

func TestApplyFillUpdatesInventoryAndPingPong(t *testing.T) {
	s := New()
	s.EnablePingPong(true)
	s.SetLiveOrder(types.Buy, &types.LiveOrder{OrderID: "o1", Side: types.Buy})

	s.ApplyFill(types.Buy, decimal.NewFromFloat(0.01), true)

	v := s.Snapshot()
	if !v.InventoryQ.Equal(decimal.NewFromFloat(0.01)) {
		t.Fatalf("expected inventory 0.01, got %s", v.InventoryQ)
	}
	if v.LiveBid != nil {
		t.Fatalf("expected live bid cleared on full fill")
	}
	if v.PingPong.Mode != types.ModeNeedSell {
		t.Fatalf("expected ping-pong mode NeedSell after BUY fill, got %s", v.PingPong.Mode)
	}
}

func TestTryBeginActionPreventsOverlap(t *testing.T) {
	s := New()
	if !s.TryBeginAction(types.Buy) {
		t.Fatalf("expected first TryBeginAction to succeed")
	}
	if s.TryBeginAction(types.Buy) {
		t.Fatalf("expected second TryBeginAction on same side to fail while in flight")
	}
	s.EndAction(types.Buy)
	if !s.TryBeginAction(types.Buy) {
		t.Fatalf("expected TryBeginAction to succeed after EndAction")
	}
}

func TestApplyFillSellDecrementsInventory(t *testing.T) {
	s := New()
	s.ApplyFill(types.Sell, decimal.NewFromFloat(0.02), false)
	v := s.Snapshot()
	if !v.InventoryQ.Equal(decimal.NewFromFloat(-0.02)) {
		t.Fatalf("expected inventory -0.02, got %s", v.InventoryQ)
	}
}
