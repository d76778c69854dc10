package signer

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"perp-mm/pkg/types"
)

func TestEIP712OracleSignProducesNonEmptySignature(t *testing.T) {
	o := NewEIP712Oracle("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", "perp-mm")
	fields := types.OrderFields{
		Market:           "ETH-USD",
		Side:             types.Buy,
		Price:            decimal.NewFromFloat(2959.4),
		SyntheticAmount:  10000,
		CollateralAmount: 29594000,
		FeeRate:          decimal.NewFromFloat(0.0005),
		NonceSeconds:     1_700_000_000,
		ExpirySeconds:    1_700_003_600,
		ChainID:          types.ChainSepolia,
		VaultID:          "1",
		StarkPublicKey:   "0xabc",
	}

	sig, err := o.Sign(context.Background(), fields)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if sig.R == "" || sig.S == "" {
		t.Fatalf("expected non-empty r,s, got %+v", sig)
	}
}

func TestEIP712OracleSignRejectsUnknownChain(t *testing.T) {
	o := NewEIP712Oracle("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", "perp-mm")
	fields := types.OrderFields{ChainID: types.ChainID("SN_UNKNOWN")}
	if _, err := o.Sign(context.Background(), fields); err == nil {
		t.Fatalf("expected error for unknown chain id")
	}
}
