package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/cedar-wallet/cedar_wallet/internal/storage"
)

type memoryRepository struct {
	tx          *storage.Memory
	rows        map[string]Transaction
	byReference map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository(tx *storage.Memory) Repository {
	return &memoryRepository{tx: tx, rows: make(map[string]Transaction), byReference: make(map[string]string)}
}

func (r *memoryRepository) Create(ctx context.Context, t Transaction) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, exists := r.rows[t.ID]; exists {
			return fmt.Errorf("transaction %s exists", t.ID)
		}
		if t.SettlementReference != "" {
			if _, taken := r.byReference[t.SettlementReference]; taken {
				return fmt.Errorf("%w: %s", ErrSettlementReferenceConflict, t.SettlementReference)
			}
			r.byReference[t.SettlementReference] = t.ID
		}
		r.rows[t.ID] = t
		storage.OnRollback(ctx, func() {
			delete(r.rows, t.ID)
			if t.SettlementReference != "" {
				delete(r.byReference, t.SettlementReference)
			}
		})
		return nil
	})
}

func (r *memoryRepository) Get(ctx context.Context, id string) (Transaction, error) {
	var out Transaction
	err := r.tx.WithinTx(ctx, func(context.Context) error {
		t, ok := r.rows[id]
		if !ok {
			return ErrTransactionNotFound
		}
		out = t
		return nil
	})
	return out, err
}

func (r *memoryRepository) GetForUpdate(ctx context.Context, id string) (Transaction, error) {
	return r.Get(ctx, id)
}

func (r *memoryRepository) Update(ctx context.Context, t Transaction) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		prev, ok := r.rows[t.ID]
		if !ok {
			return ErrTransactionNotFound
		}
		if t.SettlementReference != prev.SettlementReference && t.SettlementReference != "" {
			if owner, taken := r.byReference[t.SettlementReference]; taken && owner != t.ID {
				return fmt.Errorf("%w: %s", ErrSettlementReferenceConflict, t.SettlementReference)
			}
			r.byReference[t.SettlementReference] = t.ID
			storage.OnRollback(ctx, func() { delete(r.byReference, t.SettlementReference) })
		}
		r.rows[t.ID] = t
		storage.OnRollback(ctx, func() { r.rows[t.ID] = prev })
		return nil
	})
}

func (r *memoryRepository) GetByReference(ctx context.Context, reference string) (Transaction, error) {
	var out Transaction
	err := r.tx.WithinTx(ctx, func(context.Context) error {
		id, ok := r.byReference[reference]
		if !ok {
			return ErrTransactionNotFound
		}
		out = r.rows[id]
		return nil
	})
	return out, err
}

func (r *memoryRepository) ListByWallet(ctx context.Context, walletID string, filter ListFilter) ([]Transaction, error) {
	var all []Transaction
	err := r.tx.WithinTx(ctx, func(context.Context) error {
		for _, t := range r.rows {
			if t.FromWalletID != walletID && t.ToWalletID != walletID {
				continue
			}
			if filter.Status != "" && t.Status != filter.Status {
				continue
			}
			all = append(all, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	if filter.Offset >= len(all) {
		return nil, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}
