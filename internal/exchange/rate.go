package exchange

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
)

// ErrRateNotFound is returned when no snapshot exists for a currency pair.
var ErrRateNotFound = errors.New("exchange rate not found")

// SourceFallback labels snapshots produced by the built-in static source.
const SourceFallback = "FALLBACK"

// RateSnapshot is one observed rate. Snapshots are append-only.
type RateSnapshot struct {
	ID        string          `json:"id"`
	From      currency.Code   `json:"from_currency"`
	To        currency.Code   `json:"to_currency"`
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}

// Pair is an ordered currency pair.
type Pair struct {
	From currency.Code
	To   currency.Code
}

func (p Pair) String() string { return string(p.From) + ":" + string(p.To) }

// Pairs lists every convertible pair.
func Pairs() []Pair {
	var out []Pair
	for _, from := range currency.All() {
		for _, to := range currency.All() {
			if from != to {
				out = append(out, Pair{From: from, To: to})
			}
		}
	}
	return out
}

func (s RateSnapshot) validate() error {
	if !s.From.Valid() || !s.To.Valid() {
		return fmt.Errorf("%w: unsupported pair %s/%s", ErrInvalidConversion, s.From, s.To)
	}
	if s.From == s.To {
		return fmt.Errorf("%w: pair must name two currencies", ErrInvalidConversion)
	}
	if !s.Rate.IsPositive() {
		return fmt.Errorf("%w: rate must be positive", ErrInvalidConversion)
	}
	return nil
}
