package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cedar-wallet/cedar_wallet/internal/storage"
)

// Repository persists wallet metadata.
type Repository interface {
	Create(ctx context.Context, wallet Wallet) error
	Get(ctx context.Context, id string) (Wallet, error)
	GetByAddress(ctx context.Context, address string) (Wallet, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Wallet, error)
	SetActive(ctx context.Context, id string, active bool) (Wallet, error)
}

const walletColumns = `id::text, owner_id, address, kind, public_key, encrypted_private_key, is_active, created_at, updated_at`

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *storage.Postgres
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *storage.Postgres) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, w Wallet) error {
	_, err := r.db.Conn(ctx).Exec(ctx, `INSERT INTO wallets (id, owner_id, address, kind, public_key, encrypted_private_key, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.ID, w.OwnerID, w.Address, string(w.Kind), w.PublicKey, w.EncryptedPrivateKey, w.Active, w.CreatedAt, w.UpdatedAt)
	if storage.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateAddress, w.Address)
	}
	return err
}

// Get fetches wallet metadata by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Wallet, error) {
	return scanWallet(r.db.Conn(ctx).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}

func (r *PostgresRepository) GetByAddress(ctx context.Context, address string) (Wallet, error) {
	return scanWallet(r.db.Conn(ctx).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE address = $1`, address))
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]Wallet, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool) (Wallet, error) {
	return scanWallet(r.db.Conn(ctx).QueryRow(ctx, `UPDATE wallets SET is_active = $2, updated_at = $3
        WHERE id = $1 RETURNING `+walletColumns, id, active, time.Now().UTC()))
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	var kind string
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Address, &kind, &w.PublicKey, &w.EncryptedPrivateKey, &w.Active, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	w.Kind = Kind(kind)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
