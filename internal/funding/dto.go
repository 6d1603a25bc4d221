package funding

import (
	"github.com/shopspring/decimal"
)

// WithdrawalRequest captures a user's request to move funds off-platform.
type WithdrawalRequest struct {
	Currency           string          `json:"currency" validate:"required"`
	Amount             decimal.Decimal `json:"amount"`
	DestinationAddress string          `json:"destination_address" validate:"required"`
	Description        string          `json:"description" validate:"max=255"`
}

// DepositRequest is a deposit notice from the settlement backend. The wallet
// is named by id or by address.
type DepositRequest struct {
	WalletID      string          `json:"wallet_id" validate:"required_without=WalletAddress"`
	WalletAddress string          `json:"wallet_address"`
	Currency      string          `json:"currency" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference" validate:"required,max=128"`
}

// FundingResponse represents the API response for funding actions.
type FundingResponse struct {
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	Reference     string          `json:"reference,omitempty"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	Available     decimal.Decimal `json:"available_balance"`
}
