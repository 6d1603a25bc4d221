package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Code identifies a supported currency.
type Code string

const (
	LBP  Code = "LBP"
	USDT Code = "USDT"
)

// StorageScale is the number of fractional digits persisted for every amount.
const StorageScale int32 = 8

var (
	// ErrUnsupported is returned for currency codes the platform does not hold.
	ErrUnsupported = errors.New("unsupported currency")
	// ErrTooPrecise is returned for amounts with more fractional digits than StorageScale.
	ErrTooPrecise = errors.New("amount exceeds supported precision")
)

var precision = map[Code]int32{
	LBP:  2,
	USDT: 6,
}

// All lists the supported currencies in a stable order.
func All() []Code {
	return []Code{LBP, USDT}
}

// Parse normalizes and validates a currency code.
func Parse(s string) (Code, error) {
	code := Code(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := precision[code]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
	return code, nil
}

// Valid reports whether the code is supported.
func (c Code) Valid() bool {
	_, ok := precision[c]
	return ok
}

// Precision returns the display precision used when rounding computed amounts.
func (c Code) Precision() int32 {
	if p, ok := precision[c]; ok {
		return p
	}
	return StorageScale
}

// Round rounds half away from zero to the currency's precision.
func (c Code) Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(c.Precision())
}

func (c Code) String() string { return string(c) }

// ParseAmount parses a decimal string and rejects values that cannot be stored
// without loss.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if err := CheckScale(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// CheckScale returns ErrTooPrecise when d carries more than StorageScale fractional digits.
func CheckScale(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(StorageScale)) {
		return fmt.Errorf("%w: %s", ErrTooPrecise, d.String())
	}
	return nil
}
