// Package token defines BEER token metadata and amount conversions.
//
// All balances, supplies, and reward rates are tracked internally as
// unsigned base-unit integers (value * 10^18). Decimal token strings only
// appear at the API and config edges.
package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the fixed-point scale of all token amounts.
const Decimals = 18

// Metadata describes the token served on the supply endpoint.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals int
}

// ErrInvalidAmount is returned when a decimal amount string cannot be
// converted to base units.
var ErrInvalidAmount = errors.New("invalid token amount")

// ParseAmount converts a decimal token string (e.g. "1.5") into base units.
// Negative amounts and amounts with more than 18 fractional digits are
// rejected.
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, s)
	}

	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: more than %d decimal places in %s", ErrInvalidAmount, Decimals, s)
	}

	return scaled.BigInt(), nil
}

// FormatAmount converts base units back into a decimal token string.
func FormatAmount(units *big.Int) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -Decimals).String()
}
