package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgTxKey struct{}

// Postgres is a Transactor backed by a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps the pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Conn returns the transaction carried by ctx, or the pool when there is none.
func (p *Postgres) Conn(ctx context.Context) Querier {
	if tx, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return p.pool
}

// InTx reports whether ctx carries a Postgres transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(pgTxKey{}).(pgx.Tx)
	if ok {
		return true
	}
	_, ok = ctx.Value(memTxKey{}).(*memTx)
	return ok
}

// WithinTx runs fn inside a transaction, joining the one in ctx if present.
func (p *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(context.WithValue(ctx, pgTxKey{}, tx)); err != nil {
		return conflictOr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return conflictOr(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func conflictOr(err error) error {
	if IsRetryable(err) && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}
