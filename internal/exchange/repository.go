package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/storage"
)

// Repository is the append-only rate snapshot log.
type Repository interface {
	Append(ctx context.Context, s RateSnapshot) error
	Latest(ctx context.Context, pair Pair) (RateSnapshot, error)
	// History returns snapshots newest first.
	History(ctx context.Context, pair Pair, limit int) ([]RateSnapshot, error)
}

const rateColumns = `id::text, from_currency, to_currency, rate::text, source, recorded_at`

// PostgresRepository stores snapshots in the exchange_rates table.
type PostgresRepository struct {
	db *storage.Postgres
}

func NewPostgresRepository(db *storage.Postgres) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, s RateSnapshot) error {
	_, err := r.db.Conn(ctx).Exec(ctx, `INSERT INTO exchange_rates (id, from_currency, to_currency, rate, source, recorded_at)
        VALUES ($1, $2, $3, $4::numeric, $5, $6)`,
		s.ID, string(s.From), string(s.To), s.Rate.String(), s.Source, s.Timestamp)
	return err
}

func (r *PostgresRepository) Latest(ctx context.Context, pair Pair) (RateSnapshot, error) {
	return scanSnapshot(r.db.Conn(ctx).QueryRow(ctx, `SELECT `+rateColumns+` FROM exchange_rates
        WHERE from_currency = $1 AND to_currency = $2
        ORDER BY recorded_at DESC LIMIT 1`, string(pair.From), string(pair.To)))
}

func (r *PostgresRepository) History(ctx context.Context, pair Pair, limit int) ([]RateSnapshot, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `SELECT `+rateColumns+` FROM exchange_rates
        WHERE from_currency = $1 AND to_currency = $2
        ORDER BY recorded_at DESC LIMIT $3`, string(pair.From), string(pair.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSnapshot(row pgx.Row) (RateSnapshot, error) {
	var (
		s        RateSnapshot
		from, to string
		rate     string
	)
	if err := row.Scan(&s.ID, &from, &to, &rate, &s.Source, &s.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RateSnapshot{}, ErrRateNotFound
		}
		return RateSnapshot{}, err
	}
	var err error
	if s.Rate, err = decimal.NewFromString(rate); err != nil {
		return RateSnapshot{}, fmt.Errorf("decode rate: %w", err)
	}
	s.From, s.To = currency.Code(from), currency.Code(to)
	s.Timestamp = s.Timestamp.UTC()
	return s, nil
}

type memoryRepository struct {
	mu     sync.RWMutex
	byPair map[Pair][]RateSnapshot
}

// NewMemoryRepository keeps snapshots in process memory.
func NewMemoryRepository() Repository {
	return &memoryRepository{byPair: make(map[Pair][]RateSnapshot)}
}

func (r *memoryRepository) Append(_ context.Context, s RateSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pair := Pair{From: s.From, To: s.To}
	log := append(r.byPair[pair], s)
	sort.SliceStable(log, func(i, j int) bool { return log[i].Timestamp.Before(log[j].Timestamp) })
	r.byPair[pair] = log
	return nil
}

func (r *memoryRepository) Latest(_ context.Context, pair Pair) (RateSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	log := r.byPair[pair]
	if len(log) == 0 {
		return RateSnapshot{}, ErrRateNotFound
	}
	return log[len(log)-1], nil
}

func (r *memoryRepository) History(_ context.Context, pair Pair, limit int) ([]RateSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	log := r.byPair[pair]
	out := make([]RateSnapshot, 0, min(limit, len(log)))
	for i := len(log) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, log[i])
	}
	return out, nil
}
