// signing/signing.go
package signing

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"

	"github.com/yodablocks/grvt-sdk/types"
)

// GRVT orders are signed off-chain with EIP-712 structured data so the
// exchange's on-chain verifier can check them without trusting a server.
// The typed-data layout mirrors GRVT's on-chain Order struct; prices and
// sizes are fixed-point encoded with 9 decimal places before hashing.

const (
	domainName    = "GRVT Exchange"
	domainVersion = "1"
	scaleDecimals = 9
)

// ErrNoSignature is returned by RecoverSigner when the order has not been
// signed.
var ErrNoSignature = errors.New("order signature is not set")

var typedDataTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Order": {
		{Name: "subAccountID", Type: "uint64"},
		{Name: "timeInForce", Type: "uint8"},
		{Name: "postOnly", Type: "bool"},
		{Name: "reduceOnly", Type: "bool"},
		{Name: "legs", Type: "OrderLeg[]"},
		{Name: "nonce", Type: "uint32"},
		{Name: "expiration", Type: "int64"},
	},
	"OrderLeg": {
		{Name: "instrumentID", Type: "uint256"},
		{Name: "size", Type: "uint64"},
		{Name: "limitPrice", Type: "uint64"},
		{Name: "isBuyingAsset", Type: "bool"},
	},
}

// SignOrder EIP-712 signs an order and returns the 0x-prefixed 65-byte
// r‖s‖v signature (v ∈ {27, 28}). The signature is also stored on
// order.Signature so the same value can go straight to the REST or WS
// client. PostOnly and ReduceOnly are taken from the order itself.
//
// A zero nonce derives one from the current time; pass an explicit nonce
// when the signature must later be verified with RecoverSigner.
func SignOrder(order *types.Order, privateKeyHex string, chainID int64, verifyingContract string, nonce uint32) (string, error) {
	if nonce == 0 {
		nonce = TimestampNonce()
	}
	hash, err := orderDigest(order, chainID, verifyingContract, nonce)
	if err != nil {
		return "", err
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return "", fmt.Errorf("sign order digest: %w", err)
	}
	sig[64] += 27

	out := "0x" + hex.EncodeToString(sig)
	order.Signature = out
	return out, nil
}

// RecoverSigner returns the address that produced order.Signature. The
// same nonce used for signing is required, since it is part of the signed
// struct.
func RecoverSigner(order *types.Order, chainID int64, verifyingContract string, nonce uint32) (common.Address, error) {
	if order.Signature == "" {
		return common.Address{}, ErrNoSignature
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(order.Signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	cp := make([]byte, 65)
	copy(cp, sig)
	if cp[64] >= 27 {
		cp[64] -= 27
	}

	hash, err := orderDigest(order, chainID, verifyingContract, nonce)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(hash, cp)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// orderDigest computes the EIP-712 signing hash for an order.
func orderDigest(order *types.Order, chainID int64, verifyingContract string, nonce uint32) ([]byte, error) {
	legs := make([]any, len(order.Legs))
	for i := range order.Legs {
		leg, err := encodeLeg(&order.Legs[i])
		if err != nil {
			return nil, err
		}
		legs[i] = leg
	}

	td := apitypes.TypedData{
		Types:       typedDataTypes,
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			Version:           domainVersion,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: verifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"subAccountID": strconv.FormatInt(order.SubAccountID, 10),
			"timeInForce":  strconv.Itoa(int(order.TimeInForce)),
			"postOnly":     order.PostOnly,
			"reduceOnly":   order.ReduceOnly,
			"legs":         legs,
			"nonce":        strconv.FormatUint(uint64(nonce), 10),
			"expiration":   strconv.FormatInt(order.Expiration, 10),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	return hash, nil
}

func encodeLeg(leg *types.OrderLeg) (map[string]any, error) {
	size, err := scaleToInt(leg.Size)
	if err != nil {
		return nil, fmt.Errorf("leg size: %w", err)
	}
	price, err := scaleToInt(leg.LimitPrice)
	if err != nil {
		return nil, fmt.Errorf("leg limit price: %w", err)
	}
	id, ok := new(big.Int).SetString(strings.TrimPrefix(leg.InstrumentHash, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("instrument hash %q is not valid hex", leg.InstrumentHash)
	}
	return map[string]any{
		"instrumentID":  id.String(),
		"size":          size.String(),
		"limitPrice":    price.String(),
		"isBuyingAsset": leg.IsBuyingAsset,
	}, nil
}

// scaleToInt converts a decimal string to its 9-decimal fixed-point
// integer, truncating anything below the last on-chain digit.
func scaleToInt(v string) (*big.Int, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("%q is not a valid decimal: %w", v, err)
	}
	return d.Shift(scaleDecimals).Truncate(0).BigInt(), nil
}
