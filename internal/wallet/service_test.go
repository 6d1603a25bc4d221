package wallet

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/balance"
	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/logging"
	"github.com/cedar-wallet/cedar_wallet/internal/storage"
)

func newTestService() (*Service, *balance.MemoryStore) {
	tx := storage.NewMemory()
	balances := balance.NewMemoryStore(tx)
	return NewService(tx, NewMemoryRepository(tx), balances, logging.Discard()), balances
}

func TestServiceCreateAndBalance(t *testing.T) {
	svc, balances := newTestService()

	ctx := context.Background()
	ownerID := uuid.NewString()
	wallet, err := svc.Create(ctx, CreateInput{OwnerID: ownerID, Address: "addr-1", Kind: KindHybrid, PublicKey: "pk"})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if !wallet.Active {
		t.Fatal("expected new wallet to be active")
	}

	fetched, err := svc.Get(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if fetched.ID != wallet.ID || fetched.OwnerID != ownerID {
		t.Fatalf("expected wallet ID %s, got %s", wallet.ID, fetched.ID)
	}

	rows, err := svc.Balances(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 balance rows, got %d", len(rows))
	}

	balances.Seed(wallet.ID, currency.LBP, decimal.NewFromInt(2_500))

	b, err := svc.Balance(ctx, wallet.ID, currency.LBP)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if b.Amount.String() != "2500" {
		t.Fatalf("expected balance 2500, got %s", b.Amount)
	}
}

func TestServiceCreateSingleCurrencyWallet(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	wallet, err := svc.Create(ctx, CreateInput{OwnerID: "u1", Address: "addr-usdt", Kind: KindUSDT, PublicKey: "pk"})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if _, err := svc.Balance(ctx, wallet.ID, currency.LBP); !errors.Is(err, balance.ErrBalanceNotFound) {
		t.Fatalf("expected balance not found, got %v", err)
	}
	if _, err := svc.Balance(ctx, uuid.NewString(), currency.LBP); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
}

func TestServiceCreateDuplicateAddressLeavesNoRows(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{OwnerID: "u1", Address: "dup", Kind: KindLBPDigital, PublicKey: "pk"}); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{OwnerID: "u2", Address: "dup", Kind: KindHybrid, PublicKey: "pk"}); !errors.Is(err, ErrDuplicateAddress) {
		t.Fatalf("expected duplicate address, got %v", err)
	}
	wallets, err := svc.List(ctx, "u2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(wallets) != 0 {
		t.Fatalf("expected no wallets for u2, got %d", len(wallets))
	}
}

func TestServiceCreateValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []CreateInput{
		{Address: "a", Kind: KindUSDT, PublicKey: "pk"},
		{OwnerID: "u", Kind: KindUSDT, PublicKey: "pk"},
		{OwnerID: "u", Address: "a", Kind: "EUR", PublicKey: "pk"},
		{OwnerID: "u", Address: "a", Kind: KindUSDT},
	}
	for _, in := range cases {
		if _, err := svc.Create(ctx, in); !errors.Is(err, ErrInvalidWallet) {
			t.Fatalf("expected invalid wallet for %+v, got %v", in, err)
		}
	}
}

func TestServiceOwnershipAndActiveFlag(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	wallet, err := svc.Create(ctx, CreateInput{OwnerID: "u1", Address: "addr", Kind: KindUSDT, PublicKey: "pk"})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if _, err := svc.GetOwned(ctx, wallet.ID, "u2"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}

	updated, err := svc.SetActive(ctx, wallet.ID, false)
	if err != nil {
		t.Fatalf("set active: %v", err)
	}
	if updated.Active {
		t.Fatal("expected wallet to be inactive")
	}

	byAddr, err := svc.GetByAddress(ctx, "addr")
	if err != nil {
		t.Fatalf("get by address: %v", err)
	}
	if byAddr.ID != wallet.ID || byAddr.Active {
		t.Fatalf("unexpected wallet %+v", byAddr)
	}
}

func TestEnsureSystemWalletIsIdempotent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	float := map[currency.Code]decimal.Decimal{
		currency.LBP:  decimal.NewFromInt(1_000_000),
		currency.USDT: decimal.NewFromInt(500),
	}

	first, err := svc.EnsureSystemWallet(ctx, "system-treasury", float)
	if err != nil {
		t.Fatalf("ensure system wallet: %v", err)
	}
	second, err := svc.EnsureSystemWallet(ctx, "system-treasury", float)
	if err != nil {
		t.Fatalf("ensure system wallet again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same wallet, got %s and %s", first.ID, second.ID)
	}

	b, err := svc.Balance(ctx, first.ID, currency.LBP)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if b.Amount.String() != "1000000" {
		t.Fatalf("expected opening float to be credited once, got %s", b.Amount)
	}
}

func TestEnsureSystemWalletWarnsAboutEmptyFloat(t *testing.T) {
	var buf bytes.Buffer
	tx := storage.NewMemory()
	balances := balance.NewMemoryStore(tx)
	svc := NewService(tx, NewMemoryRepository(tx), balances, slog.New(slog.NewJSONHandler(&buf, nil)))

	_, err := svc.EnsureSystemWallet(context.Background(), "system-treasury", map[currency.Code]decimal.Decimal{
		currency.USDT: decimal.NewFromInt(500),
	})
	if err != nil {
		t.Fatalf("ensure system wallet: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"msg":"system float empty"`) || !strings.Contains(out, `"currency":"LBP"`) {
		t.Fatalf("expected warning for the unfunded LBP float, got %s", out)
	}
	if strings.Contains(out, `"currency":"USDT"`) {
		t.Fatalf("funded USDT float should not be reported: %s", out)
	}

	// Restarting against an existing wallet reports it again.
	buf.Reset()
	if _, err := svc.EnsureSystemWallet(context.Background(), "system-treasury", nil); err != nil {
		t.Fatalf("ensure system wallet again: %v", err)
	}
	if !strings.Contains(buf.String(), `"currency":"LBP"`) {
		t.Fatalf("expected warning on restart, got %s", buf.String())
	}
}
