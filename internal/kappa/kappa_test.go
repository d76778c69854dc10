package kappa

import (
	"fmt"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"perp-mm/pkg/types"
)

// syntheticTrades generates trades whose distance-from-mid distribution
// decays exponentially with depth, matching the model the estimator fits.
func syntheticTrades(n int, mid, tickSize, trueKappaTicks float64) []types.Trade {
	trades := make([]types.Trade, 0, n)
	state := int64(42)
	for i := 0; i < n; i++ {
		state = (state*1103515245 + 12345) & 0x7fffffff
		u := float64(state) / float64(0x7fffffff)
		if u <= 0 {
			u = 1e-6
		}
		depthTicks := -math.Log(u) / trueKappaTicks
		price := mid + depthTicks*tickSize
		trades = append(trades, types.Trade{
			TradeID: fmt.Sprintf("t%d", i),
			Price:   decimal.NewFromFloat(price),
			Qty:     decimal.NewFromFloat(1),
		})
	}
	return trades
}

func TestEstimateDepthInsufficientWithFewTrades(t *testing.T) {
	e := New(DefaultConfig())
	res := e.Estimate(syntheticTrades(3, 3000, 0.1, 0.1), nil, 0.1, 3000)
	if res.Kind != KindInsufficient {
		t.Fatalf("expected Insufficient with too few trades, got %v (%s)", res.Kind, res.Diagnostics)
	}
}

func TestEstimateDepthProducesPositiveKappa(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamplesPerLevel = 2
	cfg.ObservationWindowSec = 60
	e := New(cfg)
	trades := syntheticTrades(2000, 3000, 0.1, 0.5)
	res := e.Estimate(trades, nil, 0.1, 3000)
	if res.Kind != KindOK {
		t.Fatalf("expected OK, got %v (%s)", res.Kind, res.Diagnostics)
	}
	if res.Estimate.KappaUSD <= 0 {
		t.Fatalf("expected positive kappa, got %f", res.Estimate.KappaUSD)
	}
}

func TestBuildGridIsGeometricAndBounded(t *testing.T) {
	e := New(DefaultConfig())
	grid := e.buildGrid(0.1, 3000)
	if len(grid) != 18 {
		t.Fatalf("expected 18 levels, got %d", len(grid))
	}
	if grid[0] < 0.99 || grid[0] > 1.01 {
		t.Fatalf("expected first level near 1 tick, got %f", grid[0])
	}
	for i := 1; i < len(grid); i++ {
		if grid[i] <= grid[i-1] {
			t.Fatalf("expected strictly increasing grid, got %v", grid)
		}
	}
}

func TestSimpleDiagnosticOnlyFlagsItself(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Method = MethodSimple
	e := New(cfg)
	res := e.Estimate(syntheticTrades(10, 3000, 0.1, 0.1), nil, 0.1, 3000)
	if res.Diagnostics == "" {
		t.Fatalf("expected diagnostic-only warning in Diagnostics field")
	}
}
