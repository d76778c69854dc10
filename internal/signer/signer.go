// Package signer abstracts the signing oracle: sign(order_fields) -> (r,s)
// (§6, §9). The oracle is treated as a pure function; this package defines
// the interface plus a native EIP-712 implementation as one drop-in option.
// Oracle inputs must never be logged.
package signer

import (
	"context"
	"fmt"
	"math/big"

	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"perp-mm/pkg/types"
)

// Oracle signs order fields and returns the venue-accepted (r,s) pair.
// Implementations must never log their input.
type Oracle interface {
	Sign(ctx context.Context, fields types.OrderFields) (types.SignatureRS, error)
}

// EIP712Oracle is the native, in-process implementation: it signs a typed
// order hash with a local ECDSA key. A subprocess-based oracle is an
// equally valid Oracle as long as it produces the same venue-accepted hash.
type EIP712Oracle struct {
	privateKeyHex string
	domainName    string
}

// NewEIP712Oracle builds the default oracle from a hex-encoded private key
// (with or without 0x prefix).
func NewEIP712Oracle(privateKeyHex, domainName string) *EIP712Oracle {
	return &EIP712Oracle{privateKeyHex: privateKeyHex, domainName: domainName}
}

// Sign produces the typed-data signature over the order fields. It never
// logs fields: callers must not pass fields to a logger either.
func (o *EIP712Oracle) Sign(ctx context.Context, fields types.OrderFields) (types.SignatureRS, error) {
	select {
	case <-ctx.Done():
		return types.SignatureRS{}, ctx.Err()
	default:
	}

	keyHex := o.privateKeyHex
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}
	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return types.SignatureRS{}, fmt.Errorf("parse private key: %w", err)
	}

	chainIDInt, err := chainIDToInt(fields.ChainID)
	if err != nil {
		return types.SignatureRS{}, err
	}

	domain := apitypes.TypedDataDomain{
		Name:    o.domainName,
		Version: "1",
		ChainId: (*ethmath.HexOrDecimal256)(chainIDInt),
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Order": {
				{Name: "market", Type: "string"},
				{Name: "side", Type: "string"},
				{Name: "price", Type: "string"},
				{Name: "syntheticAmount", Type: "uint256"},
				{Name: "collateralAmount", Type: "uint256"},
				{Name: "feeRate", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "expiry", Type: "uint256"},
				{Name: "vaultId", Type: "string"},
			},
		},
		PrimaryType: "Order",
		Domain:      domain,
		Message: apitypes.TypedDataMessage{
			"market":           string(fields.Market),
			"side":             string(fields.Side),
			"price":            fields.Price.String(),
			"syntheticAmount":  fmt.Sprintf("%d", fields.SyntheticAmount),
			"collateralAmount": fmt.Sprintf("%d", fields.CollateralAmount),
			"feeRate":          fields.FeeRate.String(),
			"nonce":            fmt.Sprintf("%d", fields.NonceSeconds),
			"expiry":           fmt.Sprintf("%d", fields.ExpirySeconds),
			"vaultId":          fields.VaultID,
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return types.SignatureRS{}, fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, privateKey)
	if err != nil {
		return types.SignatureRS{}, fmt.Errorf("sign typed data: %w", err)
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	return types.SignatureRS{R: r.String(), S: s.String()}, nil
}

func chainIDToInt(id types.ChainID) (*big.Int, error) {
	switch id {
	case types.ChainMainnet:
		return big.NewInt(1), nil
	case types.ChainSepolia:
		return big.NewInt(11155111), nil
	default:
		return nil, fmt.Errorf("unknown chain id %q", id)
	}
}
