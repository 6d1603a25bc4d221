package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/balance"
	"github.com/cedar-wallet/cedar_wallet/internal/currency"
)

var (
	// ErrTransactionNotFound is returned when no transaction matches the lookup.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrInvalidStateTransition is matched by every *InvalidStateTransitionError.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrInvalidAmount covers non-positive amounts, negative fees, currency
	// mismatches and transfers to the same wallet.
	ErrInvalidAmount = balance.ErrInvalidAmount
	// ErrInsufficientAvailableBalance is returned when the source cannot cover amount + fee.
	ErrInsufficientAvailableBalance = balance.ErrInsufficientAvailableBalance
	// ErrSystemLiquidity is returned when the system wallet cannot fund a
	// payout. It never names the system wallet.
	ErrSystemLiquidity = errors.New("system wallet cannot cover payout")
	// ErrWalletInactive is returned when either side of a transaction is deactivated.
	ErrWalletInactive = errors.New("wallet is inactive")
	// ErrSettlementReferenceConflict is returned when a reference is already set
	// to another value or belongs to another transaction.
	ErrSettlementReferenceConflict = errors.New("settlement reference conflict")
	// ErrInvalidReference is returned for an empty settlement reference.
	ErrInvalidReference = errors.New("invalid settlement reference")
	// ErrDuplicateTransaction indicates the settlement reference was already
	// recorded, so the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

// Kind classifies why funds move.
type Kind string

const (
	KindTransfer   Kind = "TRANSFER"
	KindDeposit    Kind = "DEPOSIT"
	KindWithdrawal Kind = "WITHDRAWAL"
	KindExchange   Kind = "EXCHANGE"
)

func (k Kind) Valid() bool {
	switch k {
	case KindTransfer, KindDeposit, KindWithdrawal, KindExchange:
		return true
	}
	return false
}

// allowedTransitions is the status graph; CONFIRMED and FAILED are terminal.
func allowedTransitions() map[Status][]Status {
	return map[Status][]Status{
		StatusPending:   {StatusConfirmed, StatusFailed},
		StatusConfirmed: {},
		StatusFailed:    {},
	}
}

func canTransition(from, to Status) bool {
	for _, s := range allowedTransitions()[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InvalidStateTransitionError reports a rejected status change.
type InvalidStateTransitionError struct {
	TransactionID string
	From          Status
	To            Status
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s for transaction %s", e.From, e.To, e.TransactionID)
}

func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// Transaction is one movement of funds between two wallets in one currency.
type Transaction struct {
	ID                  string          `json:"id"`
	FromWalletID        string          `json:"from_wallet_id"`
	ToWalletID          string          `json:"to_wallet_id"`
	Currency            currency.Code   `json:"currency"`
	Amount              decimal.Decimal `json:"amount"`
	Fee                 decimal.Decimal `json:"fee"`
	Status              Status          `json:"status"`
	Kind                Kind            `json:"type"`
	SettlementReference string          `json:"settlement_reference,omitempty"`
	Confirmations       int             `json:"confirmations"`
	Description         string          `json:"description,omitempty"`
	CorrelationID       string          `json:"correlation_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Total is what the source wallet reserves and eventually pays.
func (t Transaction) Total() decimal.Decimal {
	return t.Amount.Add(t.Fee)
}

// ListFilter narrows ListByWallet.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}
