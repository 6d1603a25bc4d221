package balance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/storage"
)

// MemoryStore keeps balances in process memory. All access goes through the
// shared storage.Memory so rows written inside a failed unit are restored.
type MemoryStore struct {
	tx   *storage.Memory
	rows map[Key]Balance
}

// NewMemoryStore constructs an in-memory store for tests and local runs.
func NewMemoryStore(tx *storage.Memory) *MemoryStore {
	return &MemoryStore{tx: tx, rows: make(map[Key]Balance)}
}

func (s *MemoryStore) Create(ctx context.Context, walletID string, currencies []currency.Code) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		for _, code := range currencies {
			k := Key{WalletID: walletID, Currency: code}
			if _, exists := s.rows[k]; exists {
				return fmt.Errorf("balance %s/%s exists", walletID, code)
			}
			s.rows[k] = Balance{WalletID: walletID, Currency: code, UpdatedAt: now}
			storage.OnRollback(ctx, func() { delete(s.rows, k) })
		}
		return nil
	})
}

func (s *MemoryStore) Get(ctx context.Context, walletID string, code currency.Code) (Balance, error) {
	var out Balance
	err := s.tx.WithinTx(ctx, func(context.Context) error {
		b, ok := s.rows[Key{WalletID: walletID, Currency: code}]
		if !ok {
			return ErrBalanceNotFound
		}
		out = b
		return nil
	})
	return out, err
}

func (s *MemoryStore) ListByWallet(ctx context.Context, walletID string) ([]Balance, error) {
	var out []Balance
	err := s.tx.WithinTx(ctx, func(context.Context) error {
		for k, b := range s.rows {
			if k.WalletID == walletID {
				out = append(out, b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, err
}

func (s *MemoryStore) Lock(ctx context.Context, walletID string, code currency.Code, amount decimal.Decimal) (Balance, error) {
	if err := checkAmount(amount); err != nil {
		return Balance{}, err
	}
	return s.mutate(ctx, walletID, code, func(b Balance) (Balance, error) { return b.lock(amount) })
}

func (s *MemoryStore) Unlock(ctx context.Context, walletID string, code currency.Code, amount decimal.Decimal) (Balance, decimal.Decimal, error) {
	if err := checkAmount(amount); err != nil {
		return Balance{}, decimal.Zero, err
	}
	var released decimal.Decimal
	b, err := s.mutate(ctx, walletID, code, func(b Balance) (Balance, error) {
		var next Balance
		next, released = b.unlock(amount)
		return next, nil
	})
	return b, released, err
}

func (s *MemoryStore) Credit(ctx context.Context, walletID string, code currency.Code, amount decimal.Decimal) (Balance, error) {
	if err := checkAmount(amount); err != nil {
		return Balance{}, err
	}
	return s.mutate(ctx, walletID, code, func(b Balance) (Balance, error) { return b.credit(amount), nil })
}

func (s *MemoryStore) Debit(ctx context.Context, walletID string, code currency.Code, amount decimal.Decimal) (Balance, error) {
	if err := checkAmount(amount); err != nil {
		return Balance{}, err
	}
	return s.mutate(ctx, walletID, code, func(b Balance) (Balance, error) { return b.debit(amount) })
}

// Pin only checks the rows exist; the memory lock already serializes units.
func (s *MemoryStore) Pin(ctx context.Context, keys ...Key) error {
	return s.tx.WithinTx(ctx, func(context.Context) error {
		for _, k := range sortKeys(keys) {
			if _, ok := s.rows[k]; !ok {
				return fmt.Errorf("%w: %s/%s", ErrBalanceNotFound, k.WalletID, k.Currency)
			}
		}
		return nil
	})
}

func (s *MemoryStore) mutate(ctx context.Context, walletID string, code currency.Code, apply func(Balance) (Balance, error)) (Balance, error) {
	var out Balance
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		k := Key{WalletID: walletID, Currency: code}
		cur, ok := s.rows[k]
		if !ok {
			return ErrBalanceNotFound
		}
		next, err := apply(cur)
		if err != nil {
			return err
		}
		next.Version = cur.Version + 1
		next.UpdatedAt = time.Now().UTC()
		s.rows[k] = next
		storage.OnRollback(ctx, func() { s.rows[k] = cur })
		out = next
		return nil
	})
	return out, err
}

// Seed overwrites a row's amount. Test and bootstrap helper.
func (s *MemoryStore) Seed(walletID string, code currency.Code, amount decimal.Decimal) {
	_ = s.tx.WithinTx(context.Background(), func(context.Context) error {
		k := Key{WalletID: walletID, Currency: code}
		b := s.rows[k]
		b.WalletID, b.Currency, b.Amount = walletID, code, amount
		b.UpdatedAt = time.Now().UTC()
		s.rows[k] = b
		return nil
	})
}
