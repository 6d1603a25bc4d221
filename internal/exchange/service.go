package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/ledger"
	"github.com/cedar-wallet/cedar_wallet/internal/metrics"
	"github.com/cedar-wallet/cedar_wallet/internal/wallet"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Ledger settles both legs of an exchange.
type Ledger interface {
	Exchange(ctx context.Context, in ledger.ExchangeInput) (ledger.ExchangeResult, error)
}

// OwnedWallets resolves a wallet on behalf of its owner.
type OwnedWallets interface {
	GetOwned(ctx context.Context, id, ownerID string) (wallet.Wallet, error)
}

// Config carries the exchange settings resolved at startup.
type Config struct {
	SystemWalletID string
	FeePercent     decimal.Decimal
}

// Service quotes and executes currency exchanges against the system wallet.
type Service struct {
	repo     Repository
	cache    *RateCache
	fallback RateSource
	ledger   Ledger
	wallets  OwnedWallets
	cfg      Config
	logger   *slog.Logger
}

// NewService wires an exchange service. cache and fallback may be nil.
func NewService(repo Repository, cache *RateCache, fallback RateSource, ledger Ledger, wallets OwnedWallets, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		fallback: fallback,
		ledger:   ledger,
		wallets:  wallets,
		cfg:      cfg,
		logger:   logger,
	}
}

// Record validates and appends a snapshot, then refreshes the cache.
func (s *Service) Record(ctx context.Context, snap RateSnapshot) (RateSnapshot, error) {
	if err := snap.validate(); err != nil {
		return RateSnapshot{}, err
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	snap.Timestamp = snap.Timestamp.UTC()
	snap.Source = strings.TrimSpace(snap.Source)
	if snap.Source == "" {
		snap.Source = "UNKNOWN"
	}

	if err := s.repo.Append(ctx, snap); err != nil {
		return RateSnapshot{}, fmt.Errorf("append rate: %w", err)
	}
	if err := s.cache.Put(ctx, snap); err != nil {
		s.logger.Warn("rate cache refresh failed", slog.String("pair", Pair{snap.From, snap.To}.String()), slog.Any("error", err))
	}
	metrics.RateRecorded(snap.Source)
	return snap, nil
}

// Latest returns the newest recorded snapshot for the pair.
func (s *Service) Latest(ctx context.Context, pair Pair) (RateSnapshot, error) {
	if snap, err := s.cache.Get(ctx, pair); err == nil {
		return snap, nil
	} else if !errors.Is(err, ErrRateNotFound) {
		s.logger.Warn("rate cache read failed", slog.String("pair", pair.String()), slog.Any("error", err))
	}

	snap, err := s.repo.Latest(ctx, pair)
	if err != nil {
		return RateSnapshot{}, err
	}
	if err := s.cache.Put(ctx, snap); err != nil {
		s.logger.Warn("rate cache refresh failed", slog.String("pair", pair.String()), slog.Any("error", err))
	}
	return snap, nil
}

// History lists recorded snapshots for the pair, newest first.
func (s *Service) History(ctx context.Context, pair Pair, limit int) ([]RateSnapshot, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.repo.History(ctx, pair, limit)
}

// currentRate prefers a recorded snapshot and falls back to the static source.
func (s *Service) currentRate(ctx context.Context, pair Pair) (RateSnapshot, error) {
	snap, err := s.Latest(ctx, pair)
	if err == nil || !errors.Is(err, ErrRateNotFound) || s.fallback == nil {
		return snap, err
	}
	return s.fallback.Fetch(ctx, pair)
}

// Quote is a priced conversion.
type Quote struct {
	From          currency.Code   `json:"from_currency"`
	To            currency.Code   `json:"to_currency"`
	Amount        decimal.Decimal `json:"amount"`
	Rate          decimal.Decimal `json:"rate"`
	RateSource    string          `json:"rate_source"`
	RateTimestamp time.Time       `json:"rate_timestamp"`
	FeePercent    decimal.Decimal `json:"fee_percent"`
	Conversion
}

// Quote prices amount of from in to at the current rate and the configured fee.
func (s *Service) Quote(ctx context.Context, from, to currency.Code, amount decimal.Decimal) (Quote, error) {
	if from == to {
		return Quote{}, fmt.Errorf("%w: cannot convert %s into itself", ErrInvalidConversion, from)
	}
	if err := currency.CheckScale(amount); err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrInvalidConversion, err)
	}
	snap, err := s.currentRate(ctx, Pair{From: from, To: to})
	if err != nil {
		return Quote{}, err
	}
	conv, err := Convert(amount, snap.Rate, s.cfg.FeePercent, to.Precision())
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		From:          from,
		To:            to,
		Amount:        amount,
		Rate:          snap.Rate,
		RateSource:    snap.Source,
		RateTimestamp: snap.Timestamp,
		FeePercent:    s.cfg.FeePercent,
		Conversion:    conv,
	}, nil
}

// ExecuteInput asks to convert amount held in WalletID.
type ExecuteInput struct {
	WalletID string
	OwnerID  string
	From     currency.Code
	To       currency.Code
	Amount   decimal.Decimal
}

// Execution is a settled exchange.
type Execution struct {
	Quote         Quote              `json:"quote"`
	CorrelationID string             `json:"correlation_id"`
	Debit         ledger.Transaction `json:"debit"`
	Credit        ledger.Transaction `json:"credit"`
}

// Execute quotes the conversion and settles both legs against the system
// wallet. The quote is priced before any storage unit opens.
func (s *Service) Execute(ctx context.Context, in ExecuteInput) (Execution, error) {
	if _, err := s.wallets.GetOwned(ctx, in.WalletID, in.OwnerID); err != nil {
		return Execution{}, err
	}
	q, err := s.Quote(ctx, in.From, in.To, in.Amount)
	if err != nil {
		return Execution{}, err
	}
	if !q.NetAmount.IsPositive() {
		return Execution{}, fmt.Errorf("%w: amount too small to convert", ErrInvalidConversion)
	}

	res, err := s.ledger.Exchange(ctx, ledger.ExchangeInput{
		WalletID:       in.WalletID,
		SystemWalletID: s.cfg.SystemWalletID,
		FromCurrency:   in.From,
		ToCurrency:     in.To,
		Amount:         in.Amount,
		NetAmount:      q.NetAmount,
		Description:    fmt.Sprintf("exchange %s %s to %s at %s", in.Amount, in.From, in.To, q.Rate),
	})
	if err != nil {
		return Execution{}, err
	}
	s.logger.Info("exchange settled",
		slog.String("correlation_id", res.CorrelationID),
		slog.String("wallet_id", in.WalletID),
		slog.String("pair", Pair{in.From, in.To}.String()),
		slog.String("net_amount", q.NetAmount.String()),
	)
	return Execution{Quote: q, CorrelationID: res.CorrelationID, Debit: res.Debit, Credit: res.Credit}, nil
}
