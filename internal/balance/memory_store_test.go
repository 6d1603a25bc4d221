package balance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/storage"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newStore(t *testing.T) (*MemoryStore, *storage.Memory) {
	t.Helper()
	tx := storage.NewMemory()
	store := NewMemoryStore(tx)
	require.NoError(t, store.Create(context.Background(), "w1", []currency.Code{currency.LBP, currency.USDT}))
	return store, tx
}

func assertInvariant(t *testing.T, b Balance) {
	t.Helper()
	assert.True(t, b.LockedAmount.GreaterThanOrEqual(decimal.Zero), "locked < 0: %s", b.LockedAmount)
	assert.True(t, b.Amount.GreaterThanOrEqual(b.LockedAmount), "amount %s < locked %s", b.Amount, b.LockedAmount)
	assert.True(t, b.Available().LessThanOrEqual(b.Amount))
}

func TestCreateZeroRows(t *testing.T) {
	store, _ := newStore(t)
	rows, err := store.ListByWallet(context.Background(), "w1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, b := range rows {
		assert.True(t, b.Amount.IsZero())
		assert.True(t, b.LockedAmount.IsZero())
	}

	_, err = store.Get(context.Background(), "w2", currency.LBP)
	assert.ErrorIs(t, err, ErrBalanceNotFound)
}

func TestLockRespectsAvailable(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	store.Seed("w1", currency.LBP, dec("50"))

	_, err := store.Lock(ctx, "w1", currency.LBP, dec("60"))
	require.ErrorIs(t, err, ErrInsufficientAvailableBalance)

	b, err := store.Lock(ctx, "w1", currency.LBP, dec("30"))
	require.NoError(t, err)
	assert.Equal(t, "20", b.Available().String())
	assertInvariant(t, b)

	_, err = store.Lock(ctx, "w1", currency.LBP, dec("20.00000001"))
	require.ErrorIs(t, err, ErrInsufficientAvailableBalance)
}

func TestUnlockFloorsAtZero(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	store.Seed("w1", currency.USDT, dec("10"))

	_, err := store.Lock(ctx, "w1", currency.USDT, dec("4"))
	require.NoError(t, err)

	b, released, err := store.Unlock(ctx, "w1", currency.USDT, dec("5"))
	require.NoError(t, err)
	assert.Equal(t, "4", released.String())
	assert.True(t, b.LockedAmount.IsZero())
	assertInvariant(t, b)
}

func TestDebitCannotCrossLockedAmount(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	store.Seed("w1", currency.LBP, dec("100"))

	_, err := store.Lock(ctx, "w1", currency.LBP, dec("70"))
	require.NoError(t, err)

	_, err = store.Debit(ctx, "w1", currency.LBP, dec("40"))
	require.ErrorIs(t, err, ErrInsufficientAvailableBalance)

	b, err := store.Debit(ctx, "w1", currency.LBP, dec("30"))
	require.NoError(t, err)
	assert.Equal(t, "70", b.Amount.String())
	assertInvariant(t, b)
}

func TestMutatorsRejectInvalidAmounts(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	for _, amount := range []string{"0", "-1", "0.000000001"} {
		_, err := store.Credit(ctx, "w1", currency.LBP, dec(amount))
		assert.ErrorIs(t, err, ErrInvalidAmount, amount)
		_, err = store.Lock(ctx, "w1", currency.LBP, dec(amount))
		assert.ErrorIs(t, err, ErrInvalidAmount, amount)
	}
}

func TestFailedUnitRestoresRows(t *testing.T) {
	store, tx := newStore(t)
	ctx := context.Background()
	store.Seed("w1", currency.LBP, dec("100"))

	boom := errors.New("boom")
	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := store.Lock(ctx, "w1", currency.LBP, dec("10")); err != nil {
			return err
		}
		if _, err := store.Credit(ctx, "w1", currency.LBP, dec("5")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	b, err := store.Get(ctx, "w1", currency.LBP)
	require.NoError(t, err)
	assert.Equal(t, "100", b.Amount.String())
	assert.True(t, b.LockedAmount.IsZero())
}

func TestConcurrentLocksNeverOverReserve(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	store.Seed("w1", currency.LBP, dec("1000"))

	const workers = 50
	var wg sync.WaitGroup
	var ok int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Lock(ctx, "w1", currency.LBP, dec("30")); err == nil {
				atomic.AddInt64(&ok, 1)
			} else if !errors.Is(err, ErrInsufficientAvailableBalance) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(33), ok)
	b, err := store.Get(ctx, "w1", currency.LBP)
	require.NoError(t, err)
	assert.Equal(t, "990", b.LockedAmount.String())
	assertInvariant(t, b)
}

func TestPinRequiresRows(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Pin(ctx, Key{"w1", currency.USDT}, Key{"w1", currency.LBP}))
	assert.ErrorIs(t, store.Pin(ctx, Key{"nope", currency.LBP}), ErrBalanceNotFound)
}
