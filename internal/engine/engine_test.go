package engine

import (
	"testing"

	"github.com/shopspring/decimal"

	"perp-mm/internal/config"
	"perp-mm/pkg/types"
)

func TestTradingConfigFromResponseParsesDecimals(t *testing.T) {
	resp := types.MarketConfigResponse{
		Market:               "ETH-USD",
		TickSize:             "0.01",
		SizeIncrement:        "0.001",
		MinNotional:          "10",
		CollateralResolution: 6,
		SyntheticResolution:  8,
		TakerFeeRateBps:      5,
	}
	signerCfg := config.SignerConfig{VaultID: "1", StarkPublicKey: "0xabc"}

	trading, err := tradingConfigFromResponse(resp, signerCfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !trading.TickSize.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("tick size = %s, want 0.01", trading.TickSize)
	}
	if trading.VaultID != "1" || trading.StarkPublicKey != "0xabc" {
		t.Fatalf("signer fields not carried through: %+v", trading)
	}
}

func TestTradingConfigFromResponseRejectsMalformedDecimal(t *testing.T) {
	resp := types.MarketConfigResponse{TickSize: "not-a-number", SizeIncrement: "0.001", MinNotional: "10"}
	if _, err := tradingConfigFromResponse(resp, config.SignerConfig{}); err == nil {
		t.Fatal("expected error for malformed tick_size")
	}
}
