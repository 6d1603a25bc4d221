package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/balance"
	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/storage"
)

// Service manages wallets and the balance rows that belong to them.
type Service struct {
	tx       storage.Transactor
	repo     Repository
	balances balance.Store
	logger   *slog.Logger
}

// NewService builds a wallet service instance.
func NewService(tx storage.Transactor, repo Repository, balances balance.Store, logger *slog.Logger) *Service {
	return &Service{tx: tx, repo: repo, balances: balances, logger: logger}
}

// CreateInput captures data required to create a wallet.
type CreateInput struct {
	OwnerID             string
	Address             string
	Kind                Kind
	PublicKey           string
	EncryptedPrivateKey string
}

// Create stores the wallet and a zero balance for each supported currency in
// one atomic unit.
func (s *Service) Create(ctx context.Context, input CreateInput) (Wallet, error) {
	input.OwnerID = strings.TrimSpace(input.OwnerID)
	input.Address = strings.TrimSpace(input.Address)
	switch {
	case input.OwnerID == "":
		return Wallet{}, fmt.Errorf("%w: owner is required", ErrInvalidWallet)
	case input.Address == "":
		return Wallet{}, fmt.Errorf("%w: address is required", ErrInvalidWallet)
	case !input.Kind.Valid():
		return Wallet{}, fmt.Errorf("%w: unknown wallet type %q", ErrInvalidWallet, input.Kind)
	case input.PublicKey == "":
		return Wallet{}, fmt.Errorf("%w: public key is required", ErrInvalidWallet)
	}

	w, err := s.create(ctx, input)
	if err != nil {
		return Wallet{}, err
	}
	s.logger.Info("wallet created", slog.String("wallet_id", w.ID), slog.String("owner_id", w.OwnerID), slog.String("wallet_type", string(w.Kind)))
	return w, nil
}

func (s *Service) create(ctx context.Context, input CreateInput) (Wallet, error) {
	now := time.Now().UTC()
	w := Wallet{
		ID:                  uuid.NewString(),
		OwnerID:             input.OwnerID,
		Address:             input.Address,
		Kind:                input.Kind,
		PublicKey:           input.PublicKey,
		EncryptedPrivateKey: input.EncryptedPrivateKey,
		Active:              true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, w); err != nil {
			return err
		}
		return s.balances.Create(ctx, w.ID, w.Kind.Currencies())
	})
	if err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// Get retrieves wallet metadata.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	return s.repo.Get(ctx, id)
}

// GetOwned retrieves a wallet and checks it belongs to ownerID.
func (s *Service) GetOwned(ctx context.Context, id, ownerID string) (Wallet, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return Wallet{}, err
	}
	if w.OwnerID != ownerID {
		return Wallet{}, ErrNotOwner
	}
	return w, nil
}

// GetByAddress resolves a wallet from its public address.
func (s *Service) GetByAddress(ctx context.Context, address string) (Wallet, error) {
	return s.repo.GetByAddress(ctx, strings.TrimSpace(address))
}

// List returns the owner's wallets, oldest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]Wallet, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// SetActive toggles whether the wallet may take part in new transactions.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (Wallet, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	w, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return Wallet{}, err
	}
	s.logger.Info("wallet active flag changed", slog.String("wallet_id", id), slog.Bool("active", active))
	return w, nil
}

// Balance returns one balance row, reporting a missing wallet before a
// missing row.
func (s *Service) Balance(ctx context.Context, id string, code currency.Code) (balance.Balance, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return balance.Balance{}, err
	}
	return s.balances.Get(ctx, id, code)
}

// Balances returns every balance row of the wallet.
func (s *Service) Balances(ctx context.Context, id string) ([]balance.Balance, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.balances.ListByWallet(ctx, id)
}

// EnsureSystemWallet returns the platform counterparty wallet, creating it
// on first use and crediting the opening float in the same unit.
func (s *Service) EnsureSystemWallet(ctx context.Context, address string, float map[currency.Code]decimal.Decimal) (Wallet, error) {
	if w, err := s.repo.GetByAddress(ctx, address); err == nil {
		s.warnUnfunded(ctx, w)
		return w, nil
	} else if !errors.Is(err, ErrWalletNotFound) {
		return Wallet{}, err
	}

	var w Wallet
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		w, err = s.create(ctx, CreateInput{
			OwnerID:   SystemOwnerID,
			Address:   address,
			Kind:      KindHybrid,
			PublicKey: SystemOwnerID,
		})
		if err != nil {
			return err
		}
		for _, code := range KindHybrid.Currencies() {
			amount, ok := float[code]
			if !ok || !amount.IsPositive() {
				continue
			}
			if _, err := s.balances.Credit(ctx, w.ID, code, amount); err != nil {
				return fmt.Errorf("credit opening float %s: %w", code, err)
			}
		}
		return nil
	})
	if errors.Is(err, ErrDuplicateAddress) {
		return s.repo.GetByAddress(ctx, address)
	}
	if err != nil {
		return Wallet{}, err
	}
	s.logger.Info("system wallet created", slog.String("wallet_id", w.ID), slog.String("address", address))
	s.warnUnfunded(ctx, w)
	return w, nil
}

// warnUnfunded logs every system currency with nothing available. Deposits
// and exchange payouts in that currency fail until the float is topped up.
func (s *Service) warnUnfunded(ctx context.Context, w Wallet) {
	rows, err := s.balances.ListByWallet(ctx, w.ID)
	if err != nil {
		s.logger.Warn("read system float", slog.Any("error", err))
		return
	}
	for _, b := range rows {
		if b.Available().IsPositive() {
			continue
		}
		s.logger.Warn("system float empty",
			slog.String("currency", string(b.Currency)),
			slog.String("hint", "set SYSTEM_FLOAT_"+string(b.Currency)))
	}
}
