package funding

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
)

// Backend is the connector to the external settlement backend that executes
// withdrawals on-chain. Results come back later as settlement signals.
type Backend interface {
	SubmitWithdrawal(ctx context.Context, order WithdrawalOrder) (Submission, error)
}

// WithdrawalOrder is what the backend needs to move funds off-platform.
type WithdrawalOrder struct {
	TransactionID      string
	Currency           currency.Code
	Amount             decimal.Decimal
	DestinationAddress string
}

// Submission is the backend's acknowledgement of an order.
type Submission struct {
	Reference string
	Status    string
}

// StaticBackend accepts every order with a synthetic reference.
type StaticBackend struct{}

// SubmitWithdrawal acknowledges the order without executing it.
func (StaticBackend) SubmitWithdrawal(_ context.Context, _ WithdrawalOrder) (Submission, error) {
	return Submission{Reference: uuid.NewString(), Status: "submitted"}, nil
}
