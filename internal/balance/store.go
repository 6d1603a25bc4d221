package balance

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
)

// Store persists balance rows. Every mutator is one atomic read-modify-write
// on a single row; called with a context carrying a storage unit, it joins
// that unit instead of committing on its own.
type Store interface {
	Create(ctx context.Context, walletID string, currencies []currency.Code) error
	Get(ctx context.Context, walletID string, code currency.Code) (Balance, error)
	ListByWallet(ctx context.Context, walletID string) ([]Balance, error)
	Lock(ctx context.Context, walletID string, code currency.Code, amount decimal.Decimal) (Balance, error)
	Unlock(ctx context.Context, walletID string, code currency.Code, amount decimal.Decimal) (Balance, decimal.Decimal, error)
	Credit(ctx context.Context, walletID string, code currency.Code, amount decimal.Decimal) (Balance, error)
	Debit(ctx context.Context, walletID string, code currency.Code, amount decimal.Decimal) (Balance, error)
	// Pin takes row locks on keys in a stable order for the rest of the
	// enclosing unit. It is a no-op outside a unit.
	Pin(ctx context.Context, keys ...Key) error
}

func sortKeys(keys []Key) []Key {
	out := make([]Key, 0, len(keys))
	seen := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}
