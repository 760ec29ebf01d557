package engine

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseUnits converts a human decimal amount ("10.00") into base units at the
// given precision. Base-unit integers are the source of truth for all
// on-chain arithmetic; decimal strings exist for humans only.
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("amount %q must be positive", amount)
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	return shifted.BigInt(), nil
}

// FormatUnits renders base units back into a decimal string.
func FormatUnits(v *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(v, -decimals).String()
}
