// types/validate.go
package types

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// All monetary values (price, size, fee) travel as strings on the wire to
// preserve precision. These helpers reject values that would fail later in
// fixed-point encoding or on the exchange.

func checkDecimalString(field, v string) (decimal.Decimal, error) {
	if strings.TrimSpace(v) == "" {
		return decimal.Decimal{}, newValidationError(field, "must be a non-empty decimal string")
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, newValidationError(field, "%q is not a valid decimal string", v)
	}
	return d, nil
}

func checkPositiveDecimalString(field, v string) error {
	d, err := checkDecimalString(field, v)
	if err != nil {
		return err
	}
	if d.Sign() <= 0 {
		return newValidationError(field, "must be positive, got %q", v)
	}
	return nil
}

func checkHexHash(field, v string) error {
	stripped := strings.TrimPrefix(strings.TrimPrefix(v, "0x"), "0X")
	if stripped == "" {
		return newValidationError(field, "must be a non-empty hex string")
	}
	if _, ok := new(big.Int).SetString(stripped, 16); !ok {
		return newValidationError(field, "%q is not valid hex", v)
	}
	return nil
}
