package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidConversion is returned for a non-positive amount or rate, or a
// fee percentage outside [0, 100].
var ErrInvalidConversion = errors.New("invalid conversion")

var hundred = decimal.NewFromInt(100)

// Conversion is the result of converting an amount at a rate.
type Conversion struct {
	GrossAmount decimal.Decimal `json:"gross_amount"`
	Fee         decimal.Decimal `json:"fee"`
	NetAmount   decimal.Decimal `json:"net_amount"`
}

// Convert computes gross = amount * rate and fee = gross * feePercent / 100,
// both rounded half-up to precision fractional digits, and net = gross - fee.
func Convert(amount, rate, feePercent decimal.Decimal, precision int32) (Conversion, error) {
	switch {
	case !amount.IsPositive():
		return Conversion{}, fmt.Errorf("%w: amount must be positive", ErrInvalidConversion)
	case !rate.IsPositive():
		return Conversion{}, fmt.Errorf("%w: rate must be positive", ErrInvalidConversion)
	case feePercent.IsNegative() || feePercent.GreaterThan(hundred):
		return Conversion{}, fmt.Errorf("%w: fee percent must be between 0 and 100", ErrInvalidConversion)
	}

	gross := amount.Mul(rate).Round(precision)
	fee := gross.Mul(feePercent).Div(hundred).Round(precision)
	return Conversion{GrossAmount: gross, Fee: fee, NetAmount: gross.Sub(fee)}, nil
}
