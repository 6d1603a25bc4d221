package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/balance"
	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/ledger"
	"github.com/cedar-wallet/cedar_wallet/internal/logging"
	"github.com/cedar-wallet/cedar_wallet/internal/notification"
	"github.com/cedar-wallet/cedar_wallet/internal/storage"
	"github.com/cedar-wallet/cedar_wallet/internal/wallet"
)

type testPublisher struct {
	last notification.Event
}

func (p *testPublisher) Publish(e notification.Event) {
	p.last = e
}

type setup struct {
	svc       *Service
	balances  *balance.MemoryStore
	publisher *testPublisher
	from, to  wallet.Wallet
}

func newSetup(t *testing.T, feePercent string) setup {
	t.Helper()
	ctx := context.Background()
	tx := storage.NewMemory()
	balances := balance.NewMemoryStore(tx)
	walletSvc := wallet.NewService(tx, wallet.NewMemoryRepository(tx), balances, logging.Discard())
	publisher := &testPublisher{}
	led := ledger.NewService(tx, ledger.NewMemoryRepository(tx), balances, walletSvc, publisher, logging.Discard())

	from, err := walletSvc.Create(ctx, wallet.CreateInput{OwnerID: "alice", Address: "addr-alice", Kind: wallet.KindLBPDigital, PublicKey: "pk-a"})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	to, err := walletSvc.Create(ctx, wallet.CreateInput{OwnerID: "bob", Address: "addr-bob", Kind: wallet.KindHybrid, PublicKey: "pk-b"})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	balances.Seed(from.ID, currency.LBP, decimal.NewFromInt(10_000))

	svc := NewService(led, walletSvc, decimal.RequireFromString(feePercent), logging.Discard())
	return setup{svc: svc, balances: balances, publisher: publisher, from: from, to: to}
}

func TestTransferSuccess(t *testing.T) {
	s := newSetup(t, "0.5")
	ctx := context.Background()

	res, err := s.svc.Transfer(ctx, TransferInput{
		FromWalletID:    s.from.ID,
		ToAddress:       "addr-bob",
		Currency:        currency.LBP,
		Amount:          decimal.NewFromInt(2_000),
		RequestorUserID: "alice",
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if res.Transaction.Status != ledger.StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", res.Transaction.Status)
	}
	if res.Transaction.Fee.String() != "10" {
		t.Fatalf("expected fee 10, got %s", res.Transaction.Fee)
	}
	if res.FromBalance.String() != "7990" {
		t.Fatalf("expected from balance 7990, got %s", res.FromBalance)
	}

	to, _ := s.balances.Get(ctx, s.to.ID, currency.LBP)
	if to.Amount.String() != "2000" {
		t.Fatalf("expected to balance 2000, got %s", to.Amount)
	}

	if s.publisher.last.TransactionID != res.Transaction.ID || s.publisher.last.Type != notification.TypeTransactionConfirmed {
		t.Fatalf("unexpected event: %+v", s.publisher.last)
	}
	if len(s.publisher.last.Recipients) != 2 {
		t.Fatalf("expected both owners notified, got %v", s.publisher.last.Recipients)
	}
}

func TestTransferRejectsNonOwner(t *testing.T) {
	s := newSetup(t, "0")
	_, err := s.svc.Transfer(context.Background(), TransferInput{
		FromWalletID:    s.from.ID,
		ToWalletID:      s.to.ID,
		Currency:        currency.LBP,
		Amount:          decimal.NewFromInt(1),
		RequestorUserID: "bob",
	})
	if !errors.Is(err, wallet.ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	s := newSetup(t, "0")
	ctx := context.Background()
	_, err := s.svc.Transfer(ctx, TransferInput{
		FromWalletID:    s.from.ID,
		ToWalletID:      s.to.ID,
		Currency:        currency.LBP,
		Amount:          decimal.NewFromInt(10_001),
		RequestorUserID: "alice",
	})
	if !errors.Is(err, balance.ErrInsufficientAvailableBalance) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	b, _ := s.balances.Get(ctx, s.from.ID, currency.LBP)
	if b.Amount.String() != "10000" || !b.LockedAmount.IsZero() {
		t.Fatalf("balance changed: %+v", b)
	}
}

func TestTransferUnknownRecipient(t *testing.T) {
	s := newSetup(t, "0")
	_, err := s.svc.Transfer(context.Background(), TransferInput{
		FromWalletID:    s.from.ID,
		ToAddress:       "nowhere",
		Currency:        currency.LBP,
		Amount:          decimal.NewFromInt(1),
		RequestorUserID: "alice",
	})
	if !errors.Is(err, wallet.ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
}
