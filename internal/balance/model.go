package balance

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/storage"
)

var (
	// ErrBalanceNotFound is returned when no row exists for the wallet and currency.
	ErrBalanceNotFound = errors.New("balance not found")
	// ErrInsufficientAvailableBalance is returned when a lock or debit exceeds what the row allows.
	ErrInsufficientAvailableBalance = errors.New("insufficient available balance")
	// ErrInvalidAmount is returned for non-positive or over-precise amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrConcurrencyConflict is returned when a row changed under us and retries ran out.
	ErrConcurrencyConflict = storage.ErrConflict
)

// Balance is the per-wallet, per-currency row.
type Balance struct {
	WalletID     string          `json:"wallet_id"`
	Currency     currency.Code   `json:"currency"`
	Amount       decimal.Decimal `json:"amount"`
	LockedAmount decimal.Decimal `json:"locked_amount"`
	Version      int64           `json:"version"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Available is the part of Amount not reserved by pending transactions.
func (b Balance) Available() decimal.Decimal {
	return b.Amount.Sub(b.LockedAmount)
}

// Key addresses one balance row.
type Key struct {
	WalletID string
	Currency currency.Code
}

func (k Key) less(o Key) bool {
	if k.WalletID != o.WalletID {
		return k.WalletID < o.WalletID
	}
	return k.Currency < o.Currency
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := currency.CheckScale(amount); err != nil {
		return ErrInvalidAmount
	}
	return nil
}

func (b Balance) lock(amount decimal.Decimal) (Balance, error) {
	if amount.GreaterThan(b.Available()) {
		return b, ErrInsufficientAvailableBalance
	}
	b.LockedAmount = b.LockedAmount.Add(amount)
	return b, nil
}

// unlock floors the reservation at zero and reports how much was released.
func (b Balance) unlock(amount decimal.Decimal) (Balance, decimal.Decimal) {
	released := decimal.Min(amount, b.LockedAmount)
	b.LockedAmount = b.LockedAmount.Sub(released)
	return b, released
}

func (b Balance) credit(amount decimal.Decimal) Balance {
	b.Amount = b.Amount.Add(amount)
	return b
}

func (b Balance) debit(amount decimal.Decimal) (Balance, error) {
	if amount.GreaterThan(b.Available()) {
		return b, ErrInsufficientAvailableBalance
	}
	b.Amount = b.Amount.Sub(amount)
	return b, nil
}
