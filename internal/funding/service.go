package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/balance"
	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/ledger"
	"github.com/cedar-wallet/cedar_wallet/internal/wallet"
)

// ErrSubmissionFailed is returned when the settlement backend rejects or
// cannot be reached for a withdrawal. The reservation has been released.
var ErrSubmissionFailed = errors.New("withdrawal submission failed")

// ErrInvalidDestination is returned for a malformed withdrawal address.
var ErrInvalidDestination = errors.New("invalid destination address")

var hundred = decimal.NewFromInt(100)

// Service moves funds between user wallets and the outside world through the
// system wallet.
type Service struct {
	ledger       *ledger.Service
	wallets      *wallet.Service
	backend      Backend
	systemWallet string
	feePercent   decimal.Decimal
	logger       *slog.Logger
}

// Config carries the funding settings resolved at startup.
type Config struct {
	SystemWalletID       string
	WithdrawalFeePercent decimal.Decimal
}

// NewService prepares a funding service. backend defaults to StaticBackend.
func NewService(ledgerSvc *ledger.Service, wallets *wallet.Service, backend Backend, cfg Config, logger *slog.Logger) (*Service, error) {
	if ledgerSvc == nil || wallets == nil {
		return nil, fmt.Errorf("ledger and wallet services are required")
	}
	if cfg.SystemWalletID == "" {
		return nil, fmt.Errorf("system wallet is required")
	}
	if cfg.WithdrawalFeePercent.IsNegative() || cfg.WithdrawalFeePercent.GreaterThan(hundred) {
		return nil, fmt.Errorf("withdrawal fee percent out of range: %s", cfg.WithdrawalFeePercent)
	}
	if backend == nil {
		backend = StaticBackend{}
	}
	return &Service{
		ledger:       ledgerSvc,
		wallets:      wallets,
		backend:      backend,
		systemWallet: cfg.SystemWalletID,
		feePercent:   cfg.WithdrawalFeePercent,
		logger:       logger,
	}, nil
}

// DepositInput is a deposit observed by the settlement backend.
type DepositInput struct {
	WalletID      string
	WalletAddress string
	Currency      currency.Code
	Amount        decimal.Decimal
	Reference     string
}

// WithdrawInput is a user's withdrawal request.
type WithdrawInput struct {
	WalletID           string
	OwnerID            string
	Currency           currency.Code
	Amount             decimal.Decimal
	DestinationAddress string
	Description        string
}

// FundingResult represents the domain outcome of a funding operation.
type FundingResult struct {
	Transaction ledger.Transaction
	Balance     balance.Balance
	CompletedAt time.Time
}

// Deposit credits the wallet from the system wallet and settles immediately.
// A reference seen before returns the original transaction together with
// ledger.ErrDuplicateTransaction.
func (s *Service) Deposit(ctx context.Context, input DepositInput) (FundingResult, error) {
	input.Reference = strings.TrimSpace(input.Reference)
	if input.Reference == "" {
		return FundingResult{}, ledger.ErrInvalidReference
	}
	if existing, err := s.ledger.GetByReference(ctx, input.Reference); err == nil {
		return s.result(ctx, existing, existing.ToWalletID), ledger.ErrDuplicateTransaction
	} else if !errors.Is(err, ledger.ErrTransactionNotFound) {
		return FundingResult{}, err
	}

	w, err := s.resolve(ctx, input.WalletID, input.WalletAddress)
	if err != nil {
		return FundingResult{}, err
	}

	t, err := s.ledger.CreateAndConfirm(ctx, ledger.CreateInput{
		FromWalletID:        s.systemWallet,
		ToWalletID:          w.ID,
		Currency:            input.Currency,
		Amount:              input.Amount,
		Kind:                ledger.KindDeposit,
		Description:         "deposit " + input.Reference,
		SettlementReference: input.Reference,
	})
	if errors.Is(err, ledger.ErrSettlementReferenceConflict) {
		// Lost a race with a concurrent notice for the same reference.
		if existing, lookupErr := s.ledger.GetByReference(ctx, input.Reference); lookupErr == nil {
			return s.result(ctx, existing, existing.ToWalletID), ledger.ErrDuplicateTransaction
		}
	}
	if err != nil {
		return FundingResult{}, err
	}

	s.logger.Info("deposit credited",
		slog.String("transaction_id", t.ID),
		slog.String("wallet_id", w.ID),
		slog.String("currency", string(t.Currency)),
		slog.String("amount", t.Amount.String()),
	)
	return s.result(ctx, t, w.ID), nil
}

// Withdraw reserves amount + fee, then hands the order to the backend. The
// transaction stays PENDING until the backend reports back; a rejected
// submission fails it immediately.
func (s *Service) Withdraw(ctx context.Context, input WithdrawInput) (FundingResult, error) {
	if err := validateAddress(input.DestinationAddress); err != nil {
		return FundingResult{}, err
	}
	if _, err := s.wallets.GetOwned(ctx, input.WalletID, input.OwnerID); err != nil {
		return FundingResult{}, err
	}

	fee := input.Currency.Round(input.Amount.Mul(s.feePercent).Div(hundred))
	description := input.Description
	if description == "" {
		description = "withdrawal to " + input.DestinationAddress
	}
	t, err := s.ledger.CreateTransaction(ctx, ledger.CreateInput{
		FromWalletID: input.WalletID,
		ToWalletID:   s.systemWallet,
		Currency:     input.Currency,
		Amount:       input.Amount,
		Fee:          fee,
		Kind:         ledger.KindWithdrawal,
		Description:  description,
	})
	if err != nil {
		return FundingResult{}, err
	}

	sub, err := s.backend.SubmitWithdrawal(ctx, WithdrawalOrder{
		TransactionID:      t.ID,
		Currency:           t.Currency,
		Amount:             t.Amount,
		DestinationAddress: input.DestinationAddress,
	})
	if err != nil {
		s.logger.Error("withdrawal submission failed", slog.String("transaction_id", t.ID), slog.Any("error", err))
		failed, failErr := s.ledger.FailTransaction(ctx, t.ID, "submission failed: "+err.Error())
		if failErr != nil {
			return FundingResult{}, errors.Join(fmt.Errorf("%w: %v", ErrSubmissionFailed, err), failErr)
		}
		return s.result(ctx, failed, input.WalletID), fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	if sub.Reference != "" {
		updated, err := s.ledger.SetSettlementReference(ctx, t.ID, sub.Reference)
		if err != nil {
			s.logger.Warn("withdrawal reference not recorded", slog.String("transaction_id", t.ID), slog.Any("error", err))
		} else {
			t = updated
		}
	}
	s.logger.Info("withdrawal submitted", slog.String("transaction_id", t.ID), slog.String("backend_status", sub.Status))
	return s.result(ctx, t, input.WalletID), nil
}

func (s *Service) resolve(ctx context.Context, id, address string) (wallet.Wallet, error) {
	if id != "" {
		return s.wallets.Get(ctx, id)
	}
	return s.wallets.GetByAddress(ctx, address)
}

func (s *Service) result(ctx context.Context, t ledger.Transaction, walletID string) FundingResult {
	b, err := s.wallets.Balance(ctx, walletID, t.Currency)
	if err != nil {
		s.logger.Warn("balance lookup failed", slog.String("wallet_id", walletID), slog.Any("error", err))
	}
	return FundingResult{Transaction: t, Balance: b, CompletedAt: time.Now().UTC()}
}

func validateAddress(address string) error {
	address = strings.TrimSpace(address)
	if len(address) < 20 || len(address) > 128 {
		return fmt.Errorf("%w: must be between 20 and 128 characters", ErrInvalidDestination)
	}
	for _, r := range address {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return fmt.Errorf("%w: must be alphanumeric", ErrInvalidDestination)
		}
	}
	return nil
}
