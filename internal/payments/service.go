package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/ledger"
	"github.com/cedar-wallet/cedar_wallet/internal/wallet"
)

var hundred = decimal.NewFromInt(100)

// Service settles wallet-to-wallet transfers inside the platform.
type Service struct {
	ledger        *ledger.Service
	walletService *wallet.Service
	feePercent    decimal.Decimal
	logger        *slog.Logger
}

// NewService constructs a payment service charging feePercent of each transfer.
func NewService(ledgerSvc *ledger.Service, walletService *wallet.Service, feePercent decimal.Decimal, logger *slog.Logger) *Service {
	return &Service{ledger: ledgerSvc, walletService: walletService, feePercent: feePercent, logger: logger}
}

// TransferInput captures the data needed to move funds between wallets. The
// destination is named by id or by address.
type TransferInput struct {
	FromWalletID    string
	ToWalletID      string
	ToAddress       string
	Currency        currency.Code
	Amount          decimal.Decimal
	Description     string
	RequestorUserID string
}

// TransferResult describes the settled transfer.
type TransferResult struct {
	Transaction ledger.Transaction
	FromBalance decimal.Decimal
	CompletedAt time.Time
}

// Transfer creates and confirms a TRANSFER in one unit. The source wallet must
// belong to the requestor.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if _, err := s.walletService.GetOwned(ctx, input.FromWalletID, input.RequestorUserID); err != nil {
		return TransferResult{}, err
	}

	toWalletID := strings.TrimSpace(input.ToWalletID)
	if toWalletID == "" {
		toWallet, err := s.walletService.GetByAddress(ctx, input.ToAddress)
		if err != nil {
			return TransferResult{}, fmt.Errorf("resolve recipient: %w", err)
		}
		toWalletID = toWallet.ID
	}

	fee := input.Currency.Round(input.Amount.Mul(s.feePercent).Div(hundred))
	t, err := s.ledger.CreateAndConfirm(ctx, ledger.CreateInput{
		FromWalletID: input.FromWalletID,
		ToWalletID:   toWalletID,
		Currency:     input.Currency,
		Amount:       input.Amount,
		Fee:          fee,
		Kind:         ledger.KindTransfer,
		Description:  input.Description,
	})
	if err != nil {
		return TransferResult{}, err
	}

	outcome := TransferResult{Transaction: t, CompletedAt: time.Now().UTC()}
	if b, err := s.walletService.Balance(ctx, input.FromWalletID, input.Currency); err == nil {
		outcome.FromBalance = b.Amount
	} else {
		s.logger.Warn("balance lookup failed", slog.String("wallet_id", input.FromWalletID), slog.Any("error", err))
	}
	return outcome, nil
}
