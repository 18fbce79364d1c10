package units

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/kelreel/sonichash/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// MaxUintBits is the width of an on-chain uint256 amount.
const MaxUintBits = 256

// ParseAmount converts a human decimal amount such as "1.25" into base units
// for a token with the given decimals. Zero amounts are rejected.
func ParseAmount(amount string, decimals int) (*big.Int, error) {
	v := strings.TrimSpace(amount)
	if v == "" {
		return nil, clierr.New(clierr.CodeUsage, "amount is required")
	}
	if decimals < 0 {
		return nil, clierr.New(clierr.CodeUsage, "decimals must be >= 0")
	}
	if !decimalPattern.MatchString(v) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %q must be a positive decimal like 1.23", amount))
	}
	parts := strings.SplitN(v, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > decimals {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}
	fracPart += strings.Repeat("0", decimals-len(fracPart))
	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		return nil, clierr.New(clierr.CodeUsage, "amount must be greater than zero")
	}
	out, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeUsage, "invalid decimal amount")
	}
	if out.BitLen() > MaxUintBits {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %q does not fit in uint256 base units", amount))
	}
	return out, nil
}

// FormatUnits renders base units as a decimal string without trailing zeros.
func FormatUnits(baseUnits *big.Int, decimals int) string {
	if baseUnits == nil {
		return "0"
	}
	return decimal.NewFromBigInt(baseUnits, int32(-decimals)).String()
}

// ToDecimal converts base units into a decimal value.
func ToDecimal(baseUnits *big.Int, decimals int) decimal.Decimal {
	if baseUnits == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(baseUnits, int32(-decimals))
}

// FromDecimal converts a decimal value into base units, truncating any
// precision beyond the token decimals.
func FromDecimal(v decimal.Decimal, decimals int) *big.Int {
	return v.Shift(int32(decimals)).Truncate(0).BigInt()
}
