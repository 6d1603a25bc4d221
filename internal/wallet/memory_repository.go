package wallet

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cedar-wallet/cedar_wallet/internal/storage"
)

type memoryRepository struct {
	tx        *storage.Memory
	storage   map[string]Wallet
	byAddress map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository(tx *storage.Memory) Repository {
	return &memoryRepository{tx: tx, storage: make(map[string]Wallet), byAddress: make(map[string]string)}
}

func (r *memoryRepository) Create(ctx context.Context, wallet Wallet) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, exists := r.byAddress[wallet.Address]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateAddress, wallet.Address)
		}
		if _, exists := r.storage[wallet.ID]; exists {
			return fmt.Errorf("wallet %s exists", wallet.ID)
		}
		r.storage[wallet.ID] = wallet
		r.byAddress[wallet.Address] = wallet.ID
		storage.OnRollback(ctx, func() {
			delete(r.storage, wallet.ID)
			delete(r.byAddress, wallet.Address)
		})
		return nil
	})
}

func (r *memoryRepository) Get(ctx context.Context, id string) (Wallet, error) {
	var out Wallet
	err := r.tx.WithinTx(ctx, func(context.Context) error {
		wallet, ok := r.storage[id]
		if !ok {
			return ErrWalletNotFound
		}
		out = wallet
		return nil
	})
	return out, err
}

func (r *memoryRepository) GetByAddress(ctx context.Context, address string) (Wallet, error) {
	var out Wallet
	err := r.tx.WithinTx(ctx, func(context.Context) error {
		id, ok := r.byAddress[address]
		if !ok {
			return ErrWalletNotFound
		}
		out = r.storage[id]
		return nil
	})
	return out, err
}

func (r *memoryRepository) ListByOwner(ctx context.Context, ownerID string) ([]Wallet, error) {
	var out []Wallet
	err := r.tx.WithinTx(ctx, func(context.Context) error {
		for _, w := range r.storage {
			if w.OwnerID == ownerID {
				out = append(out, w)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *memoryRepository) SetActive(ctx context.Context, id string, active bool) (Wallet, error) {
	var out Wallet
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		prev, ok := r.storage[id]
		if !ok {
			return ErrWalletNotFound
		}
		next := prev
		next.Active = active
		next.UpdatedAt = time.Now().UTC()
		r.storage[id] = next
		storage.OnRollback(ctx, func() { r.storage[id] = prev })
		out = next
		return nil
	})
	return out, err
}
