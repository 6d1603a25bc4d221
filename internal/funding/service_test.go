package funding

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/balance"
	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/ledger"
	"github.com/cedar-wallet/cedar_wallet/internal/logging"
	"github.com/cedar-wallet/cedar_wallet/internal/storage"
	"github.com/cedar-wallet/cedar_wallet/internal/wallet"
)

const destination = "TQ4Wn1bXg3T9n6yV2kP8sLm5Rz7Jc0Hd"

type failingBackend struct{}

func (failingBackend) SubmitWithdrawal(context.Context, WithdrawalOrder) (Submission, error) {
	return Submission{}, errors.New("node unavailable")
}

type env struct {
	service  *Service
	ledger   *ledger.Service
	balances *balance.MemoryStore
	user     wallet.Wallet
	system   wallet.Wallet
}

func newEnv(t *testing.T, backend Backend, feePercent string) env {
	t.Helper()
	ctx := context.Background()
	tx := storage.NewMemory()
	balances := balance.NewMemoryStore(tx)
	wallets := wallet.NewService(tx, wallet.NewMemoryRepository(tx), balances, logging.Discard())
	ledgerSvc := ledger.NewService(tx, ledger.NewMemoryRepository(tx), balances, wallets, nil, logging.Discard())

	system, err := wallets.EnsureSystemWallet(ctx, "system", map[currency.Code]decimal.Decimal{
		currency.LBP:  decimal.NewFromInt(1_000_000),
		currency.USDT: decimal.NewFromInt(1_000),
	})
	if err != nil {
		t.Fatalf("system wallet: %v", err)
	}
	user, err := wallets.Create(ctx, wallet.CreateInput{OwnerID: "alice", Address: "addr-alice", Kind: wallet.KindUSDT, PublicKey: "pk"})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	service, err := NewService(ledgerSvc, wallets, backend, Config{
		SystemWalletID:       system.ID,
		WithdrawalFeePercent: decimal.RequireFromString(feePercent),
	}, logging.Discard())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return env{service: service, ledger: ledgerSvc, balances: balances, user: user, system: system}
}

func TestServiceDeposit(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil, "0")

	res, err := e.service.Deposit(ctx, DepositInput{
		WalletAddress: "addr-alice",
		Currency:      currency.USDT,
		Amount:        decimal.RequireFromString("25.5"),
		Reference:     "0xdeposit",
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if res.Transaction.Status != ledger.StatusConfirmed || res.Transaction.Kind != ledger.KindDeposit {
		t.Fatalf("unexpected transaction: %+v", res.Transaction)
	}
	if res.Balance.Amount.String() != "25.5" {
		t.Fatalf("expected balance 25.5, got %s", res.Balance.Amount)
	}

	dup, err := e.service.Deposit(ctx, DepositInput{
		WalletID:  e.user.ID,
		Currency:  currency.USDT,
		Amount:    decimal.RequireFromString("25.5"),
		Reference: "0xdeposit",
	})
	if !errors.Is(err, ledger.ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if dup.Transaction.ID != res.Transaction.ID {
		t.Fatalf("duplicate returned %s, want %s", dup.Transaction.ID, res.Transaction.ID)
	}
	if dup.Balance.Amount.String() != "25.5" {
		t.Fatalf("duplicate credited twice: %s", dup.Balance.Amount)
	}

	if _, err := e.service.Deposit(ctx, DepositInput{WalletID: e.user.ID, Currency: currency.USDT, Amount: decimal.NewFromInt(1)}); !errors.Is(err, ledger.ErrInvalidReference) {
		t.Fatalf("expected invalid reference, got %v", err)
	}
	if _, err := e.service.Deposit(ctx, DepositInput{WalletAddress: "nope", Currency: currency.USDT, Amount: decimal.NewFromInt(1), Reference: "r2"}); !errors.Is(err, wallet.ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
}

func TestServiceWithdraw(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, StaticBackend{}, "1")
	e.balances.Seed(e.user.ID, currency.USDT, decimal.NewFromInt(50))

	res, err := e.service.Withdraw(ctx, WithdrawInput{
		WalletID:           e.user.ID,
		OwnerID:            "alice",
		Currency:           currency.USDT,
		Amount:             decimal.NewFromInt(20),
		DestinationAddress: destination,
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	tr := res.Transaction
	if tr.Status != ledger.StatusPending || tr.Fee.String() != "0.2" || tr.SettlementReference == "" {
		t.Fatalf("unexpected transaction: %+v", tr)
	}
	if res.Balance.Available().String() != "29.8" {
		t.Fatalf("expected available 29.8, got %s", res.Balance.Available())
	}

	if _, err := e.ledger.ConfirmTransaction(ctx, tr.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	b, _ := e.balances.Get(ctx, e.user.ID, currency.USDT)
	if b.Amount.String() != "29.8" || !b.LockedAmount.IsZero() {
		t.Fatalf("unexpected balance after settlement: %+v", b)
	}

	_, err = e.service.Withdraw(ctx, WithdrawInput{
		WalletID:           e.user.ID,
		OwnerID:            "alice",
		Currency:           currency.USDT,
		Amount:             decimal.NewFromInt(100),
		DestinationAddress: destination,
	})
	if !errors.Is(err, balance.ErrInsufficientAvailableBalance) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestServiceWithdrawRejectedSubmission(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, failingBackend{}, "0")
	e.balances.Seed(e.user.ID, currency.USDT, decimal.NewFromInt(50))

	res, err := e.service.Withdraw(ctx, WithdrawInput{
		WalletID:           e.user.ID,
		OwnerID:            "alice",
		Currency:           currency.USDT,
		Amount:             decimal.NewFromInt(20),
		DestinationAddress: destination,
	})
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected submission failure, got %v", err)
	}
	if res.Transaction.Status != ledger.StatusFailed {
		t.Fatalf("expected FAILED, got %s", res.Transaction.Status)
	}
	if !res.Balance.LockedAmount.IsZero() || res.Balance.Amount.String() != "50" {
		t.Fatalf("reservation not released: %+v", res.Balance)
	}
}

func TestServiceWithdrawValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil, "0")

	if _, err := e.service.Withdraw(ctx, WithdrawInput{WalletID: e.user.ID, OwnerID: "alice", Currency: currency.USDT, Amount: decimal.NewFromInt(1), DestinationAddress: "short"}); !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("expected invalid destination, got %v", err)
	}
	if _, err := e.service.Withdraw(ctx, WithdrawInput{WalletID: e.user.ID, OwnerID: "mallory", Currency: currency.USDT, Amount: decimal.NewFromInt(1), DestinationAddress: destination}); !errors.Is(err, wallet.ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if _, err := NewService(e.ledger, nil, nil, Config{SystemWalletID: "x"}, logging.Discard()); err == nil {
		t.Fatal("expected constructor error without wallets")
	}
}
