package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/storage"
)

const balanceColumns = `wallet_id::text, currency, amount::text, locked_amount::text, version, updated_at`

// PostgresStore keeps balances in the balances table. Mutations lock the row
// with SELECT ... FOR UPDATE and write back guarded by the row version.
type PostgresStore struct {
	db    *storage.Postgres
	retry RetryPolicy
}

// NewPostgresStore builds a Postgres-backed store.
func NewPostgresStore(db *storage.Postgres, retry RetryPolicy) *PostgresStore {
	return &PostgresStore{db: db, retry: retry}
}

func (s *PostgresStore) Create(ctx context.Context, walletID string, currencies []currency.Code) error {
	now := time.Now().UTC()
	return s.db.WithinTx(ctx, func(ctx context.Context) error {
		q := s.db.Conn(ctx)
		for _, code := range currencies {
			if _, err := q.Exec(ctx, `INSERT INTO balances (wallet_id, currency, amount, locked_amount, version, updated_at)
                VALUES ($1, $2, 0, 0, 0, $3)`, walletID, string(code), now); err != nil {
				return fmt.Errorf("insert balance %s: %w", code, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) Get(ctx context.Context, walletID string, code currency.Code) (Balance, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `SELECT `+balanceColumns+` FROM balances WHERE wallet_id = $1 AND currency = $2`, walletID, string(code))
	return scanBalance(row)
}

func (s *PostgresStore) ListByWallet(ctx context.Context, walletID string) ([]Balance, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, `SELECT `+balanceColumns+` FROM balances WHERE wallet_id = $1 ORDER BY currency`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Lock(ctx context.Context, walletID string, code currency.Code, amount decimal.Decimal) (Balance, error) {
	if err := checkAmount(amount); err != nil {
		return Balance{}, err
	}
	return s.mutate(ctx, walletID, code, func(b Balance) (Balance, error) { return b.lock(amount) })
}

func (s *PostgresStore) Unlock(ctx context.Context, walletID string, code currency.Code, amount decimal.Decimal) (Balance, decimal.Decimal, error) {
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

func (s *PostgresStore) Credit(ctx context.Context, walletID string, code currency.Code, amount decimal.Decimal) (Balance, error) {
	if err := checkAmount(amount); err != nil {
		return Balance{}, err
	}
	return s.mutate(ctx, walletID, code, func(b Balance) (Balance, error) { return b.credit(amount), nil })
}

func (s *PostgresStore) Debit(ctx context.Context, walletID string, code currency.Code, amount decimal.Decimal) (Balance, error) {
	if err := checkAmount(amount); err != nil {
		return Balance{}, err
	}
	return s.mutate(ctx, walletID, code, func(b Balance) (Balance, error) { return b.debit(amount) })
}

func (s *PostgresStore) Pin(ctx context.Context, keys ...Key) error {
	if !storage.InTx(ctx) {
		return nil
	}
	q := s.db.Conn(ctx)
	for _, k := range sortKeys(keys) {
		var version int64
		err := q.QueryRow(ctx, `SELECT version FROM balances WHERE wallet_id = $1 AND currency = $2 FOR UPDATE`, k.WalletID, string(k.Currency)).Scan(&version)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s/%s", ErrBalanceNotFound, k.WalletID, k.Currency)
			}
			return err
		}
	}
	return nil
}

func (s *PostgresStore) mutate(ctx context.Context, walletID string, code currency.Code, apply func(Balance) (Balance, error)) (Balance, error) {
	var out Balance
	err := s.retry.Do(ctx, func() error {
		return s.db.WithinTx(ctx, func(ctx context.Context) error {
			q := s.db.Conn(ctx)
			cur, err := scanBalance(q.QueryRow(ctx, `SELECT `+balanceColumns+` FROM balances
                WHERE wallet_id = $1 AND currency = $2 FOR UPDATE`, walletID, string(code)))
			if err != nil {
				return err
			}

			next, err := apply(cur)
			if err != nil {
				return err
			}
			next.UpdatedAt = time.Now().UTC()

			tag, err := q.Exec(ctx, `UPDATE balances
                SET amount = $1::numeric, locked_amount = $2::numeric, version = version + 1, updated_at = $3
                WHERE wallet_id = $4 AND currency = $5 AND version = $6`,
				next.Amount.String(), next.LockedAmount.String(), next.UpdatedAt, walletID, string(code), cur.Version)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return ErrConcurrencyConflict
			}
			next.Version = cur.Version + 1
			out = next
			return nil
		})
	})
	return out, err
}

func scanBalance(row pgx.Row) (Balance, error) {
	var (
		b              Balance
		code           string
		amount, locked string
	)
	if err := row.Scan(&b.WalletID, &code, &amount, &locked, &b.Version, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	var err error
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return Balance{}, fmt.Errorf("decode amount: %w", err)
	}
	if b.LockedAmount, err = decimal.NewFromString(locked); err != nil {
		return Balance{}, fmt.Errorf("decode locked amount: %w", err)
	}
	b.Currency = currency.Code(code)
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}
