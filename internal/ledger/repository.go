package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/storage"
)

// Repository persists transactions.
type Repository interface {
	Create(ctx context.Context, t Transaction) error
	Get(ctx context.Context, id string) (Transaction, error)
	// GetForUpdate reads the row and holds its lock until the enclosing unit ends.
	GetForUpdate(ctx context.Context, id string) (Transaction, error)
	Update(ctx context.Context, t Transaction) error
	GetByReference(ctx context.Context, reference string) (Transaction, error)
	ListByWallet(ctx context.Context, walletID string, filter ListFilter) ([]Transaction, error)
}

const transactionColumns = `id, from_wallet_id::text, to_wallet_id::text, currency, amount::text, fee::text, status, kind,
        settlement_reference, confirmations, description, correlation_id, created_at, updated_at`

// PostgresRepository stores transactions in PostgreSQL.
type PostgresRepository struct {
	db *storage.Postgres
}

// NewPostgresRepository builds a Postgres-backed transaction repository.
func NewPostgresRepository(db *storage.Postgres) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t Transaction) error {
	_, err := r.db.Conn(ctx).Exec(ctx, `INSERT INTO transactions (id, from_wallet_id, to_wallet_id, currency, amount, fee, status, kind,
        settlement_reference, confirmations, description, correlation_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID, t.FromWalletID, t.ToWalletID, string(t.Currency), t.Amount.String(), t.Fee.String(), string(t.Status), string(t.Kind),
		nullable(t.SettlementReference), t.Confirmations, t.Description, nullable(t.CorrelationID), t.CreatedAt, t.UpdatedAt)
	if storage.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrSettlementReferenceConflict, t.SettlementReference)
	}
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Transaction, error) {
	return scanTransaction(r.db.Conn(ctx).QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (Transaction, error) {
	return scanTransaction(r.db.Conn(ctx).QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
}

func (r *PostgresRepository) Update(ctx context.Context, t Transaction) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `UPDATE transactions
        SET status = $2, settlement_reference = $3, confirmations = $4, description = $5, updated_at = $6
        WHERE id = $1`,
		t.ID, string(t.Status), nullable(t.SettlementReference), t.Confirmations, t.Description, t.UpdatedAt)
	if storage.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrSettlementReferenceConflict, t.SettlementReference)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *PostgresRepository) GetByReference(ctx context.Context, reference string) (Transaction, error) {
	return scanTransaction(r.db.Conn(ctx).QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE settlement_reference = $1`, reference))
}

func (r *PostgresRepository) ListByWallet(ctx context.Context, walletID string, filter ListFilter) ([]Transaction, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE (from_wallet_id = $1 OR to_wallet_id = $1) AND ($2 = '' OR status = $2)
        ORDER BY created_at DESC, id DESC
        LIMIT $3 OFFSET $4`, walletID, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t                        Transaction
		code, status, kind       string
		amount, fee              string
		reference, correlationID *string
	)
	err := row.Scan(&t.ID, &t.FromWalletID, &t.ToWalletID, &code, &amount, &fee, &status, &kind,
		&reference, &t.Confirmations, &t.Description, &correlationID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return Transaction{}, fmt.Errorf("decode amount: %w", err)
	}
	if t.Fee, err = decimal.NewFromString(fee); err != nil {
		return Transaction{}, fmt.Errorf("decode fee: %w", err)
	}
	t.Currency = currency.Code(code)
	t.Status = Status(status)
	t.Kind = Kind(kind)
	if reference != nil {
		t.SettlementReference = *reference
	}
	if correlationID != nil {
		t.CorrelationID = *correlationID
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
