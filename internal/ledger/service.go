package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cedar-wallet/cedar_wallet/internal/balance"
	"github.com/cedar-wallet/cedar_wallet/internal/currency"
	"github.com/cedar-wallet/cedar_wallet/internal/metrics"
	"github.com/cedar-wallet/cedar_wallet/internal/notification"
	"github.com/cedar-wallet/cedar_wallet/internal/storage"
	"github.com/cedar-wallet/cedar_wallet/internal/wallet"
)

const (
	defaultFailureReason = "transaction failed"
	defaultListLimit     = 50
)

// WalletLookup resolves wallets by id.
type WalletLookup interface {
	Get(ctx context.Context, id string) (wallet.Wallet, error)
}

// EventPublisher receives events after commit. Publish must not block.
type EventPublisher interface {
	Publish(event notification.Event)
}

// Service runs the transaction state machine on top of the balance store.
// Every operation that touches balances runs as one storage unit.
type Service struct {
	tx       storage.Transactor
	repo     Repository
	balances balance.Store
	wallets  WalletLookup
	events   EventPublisher
	ids      *IDGenerator
	logger   *slog.Logger
}

// NewService wires a ledger service. events may be nil.
func NewService(tx storage.Transactor, repo Repository, balances balance.Store, wallets WalletLookup, events EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		tx:       tx,
		repo:     repo,
		balances: balances,
		wallets:  wallets,
		events:   events,
		ids:      NewIDGenerator(),
		logger:   logger,
	}
}

// CreateInput describes a new transaction.
type CreateInput struct {
	FromWalletID        string
	ToWalletID          string
	Currency            currency.Code
	Amount              decimal.Decimal
	Fee                 decimal.Decimal
	Kind                Kind
	Description         string
	SettlementReference string
	CorrelationID       string
}

// CreateTransaction reserves amount + fee on the source wallet and records a
// PENDING transaction. Nothing is written if the reservation fails.
func (s *Service) CreateTransaction(ctx context.Context, in CreateInput) (Transaction, error) {
	var created Transaction
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.create(ctx, in)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	metrics.TransactionRecorded(string(created.Kind), string(created.Status))
	s.publish(ctx, notification.TypeTransactionCreated, created)
	return created, nil
}

// CreateAndConfirm records a transaction and settles it in the same unit.
// Used for internally settled movements that never wait on an external party.
func (s *Service) CreateAndConfirm(ctx context.Context, in CreateInput) (Transaction, error) {
	var settled Transaction
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		created, err := s.create(ctx, in)
		if err != nil {
			return err
		}
		settled, _, err = s.confirm(ctx, created.ID)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	metrics.TransactionRecorded(string(settled.Kind), string(settled.Status))
	s.publish(ctx, notification.TypeTransactionConfirmed, settled)
	return settled, nil
}

func (s *Service) create(ctx context.Context, in CreateInput) (Transaction, error) {
	if in.Kind == "" {
		in.Kind = KindTransfer
	}
	source, err := s.validate(ctx, in)
	if err != nil {
		return Transaction{}, err
	}

	if _, err := s.balances.Lock(ctx, in.FromWalletID, in.Currency, in.Amount.Add(in.Fee)); err != nil {
		if source.OwnerID == wallet.SystemOwnerID && errors.Is(err, ErrInsufficientAvailableBalance) {
			s.logger.Warn("system float exhausted",
				slog.String("currency", string(in.Currency)),
				slog.String("requested", in.Amount.Add(in.Fee).String()))
			return Transaction{}, fmt.Errorf("%w: %s", ErrSystemLiquidity, in.Currency)
		}
		return Transaction{}, fmt.Errorf("reserve funds on %s: %w", in.FromWalletID, err)
	}

	now := time.Now().UTC()
	t := Transaction{
		ID:                  s.ids.New(),
		FromWalletID:        in.FromWalletID,
		ToWalletID:          in.ToWalletID,
		Currency:            in.Currency,
		Amount:              in.Amount,
		Fee:                 in.Fee,
		Status:              StatusPending,
		Kind:                in.Kind,
		SettlementReference: strings.TrimSpace(in.SettlementReference),
		Description:         in.Description,
		CorrelationID:       in.CorrelationID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func (s *Service) validate(ctx context.Context, in CreateInput) (wallet.Wallet, error) {
	if !in.Kind.Valid() {
		return wallet.Wallet{}, fmt.Errorf("%w: unknown transaction type %q", ErrInvalidAmount, in.Kind)
	}
	if !in.Amount.IsPositive() || currency.CheckScale(in.Amount) != nil {
		return wallet.Wallet{}, fmt.Errorf("%w: amount must be positive with at most %d decimals", ErrInvalidAmount, currency.StorageScale)
	}
	if in.Fee.IsNegative() || currency.CheckScale(in.Fee) != nil {
		return wallet.Wallet{}, fmt.Errorf("%w: fee must not be negative", ErrInvalidAmount)
	}
	if !in.Currency.Valid() {
		return wallet.Wallet{}, fmt.Errorf("%w: unsupported currency %q", ErrInvalidAmount, in.Currency)
	}
	if in.FromWalletID == in.ToWalletID {
		return wallet.Wallet{}, fmt.Errorf("%w: source and destination wallet are the same", ErrInvalidAmount)
	}

	var source wallet.Wallet
	for i, id := range []string{in.FromWalletID, in.ToWalletID} {
		w, err := s.wallets.Get(ctx, id)
		if err != nil {
			return wallet.Wallet{}, err
		}
		if !w.Active {
			return wallet.Wallet{}, fmt.Errorf("%w: %s", ErrWalletInactive, id)
		}
		if !w.Supports(in.Currency) {
			return wallet.Wallet{}, fmt.Errorf("%w: wallet %s does not hold %s", ErrInvalidAmount, id, in.Currency)
		}
		if i == 0 {
			source = w
		}
	}
	return source, nil
}

// ConfirmTransaction settles a PENDING transaction: the reservation is
// released, the source pays amount + fee and the destination receives amount.
// Confirming a transaction that is no longer PENDING returns it unchanged.
func (s *Service) ConfirmTransaction(ctx context.Context, id string) (Transaction, error) {
	var (
		t       Transaction
		changed bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, changed, err = s.confirm(ctx, id)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	if changed {
		metrics.TransactionRecorded(string(t.Kind), string(t.Status))
		metrics.SettlementObserved(string(t.Kind), string(t.Status), t.CreatedAt)
		s.publish(ctx, notification.TypeTransactionConfirmed, t)
	}
	return t, nil
}

func (s *Service) confirm(ctx context.Context, id string) (Transaction, bool, error) {
	t, err := s.repo.GetForUpdate(ctx, id)
	if err != nil {
		return Transaction{}, false, err
	}
	if !canTransition(t.Status, StatusConfirmed) {
		return t, false, nil
	}

	err = s.balances.Pin(ctx,
		balance.Key{WalletID: t.FromWalletID, Currency: t.Currency},
		balance.Key{WalletID: t.ToWalletID, Currency: t.Currency})
	if err != nil {
		return Transaction{}, false, err
	}

	total := t.Total()
	// Release before debit: the debit may not take amount below the locked part.
	if _, released, err := s.balances.Unlock(ctx, t.FromWalletID, t.Currency, total); err != nil {
		return Transaction{}, false, fmt.Errorf("release reservation: %w", err)
	} else if released.LessThan(total) {
		s.logger.Warn("reservation smaller than transaction total",
			slog.String("transaction_id", t.ID),
			slog.String("released", released.String()),
			slog.String("total", total.String()))
	}
	if _, err := s.balances.Debit(ctx, t.FromWalletID, t.Currency, total); err != nil {
		return Transaction{}, false, fmt.Errorf("debit source: %w", err)
	}
	if _, err := s.balances.Credit(ctx, t.ToWalletID, t.Currency, t.Amount); err != nil {
		return Transaction{}, false, fmt.Errorf("credit destination: %w", err)
	}

	t.Status = StatusConfirmed
	t.Confirmations = 1
	t.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, t); err != nil {
		return Transaction{}, false, err
	}
	return t, true, nil
}

// FailTransaction releases the reservation of a PENDING transaction and marks
// it FAILED. Failing a FAILED transaction is a no-op; failing a CONFIRMED one
// is rejected.
func (s *Service) FailTransaction(ctx context.Context, id, reason string) (Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultFailureReason
	}

	var (
		t       Transaction
		changed bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.Status == StatusFailed {
			return nil
		}
		if !canTransition(t.Status, StatusFailed) {
			return &InvalidStateTransitionError{TransactionID: id, From: t.Status, To: StatusFailed}
		}

		total := t.Total()
		_, released, err := s.balances.Unlock(ctx, t.FromWalletID, t.Currency, total)
		if err != nil {
			return fmt.Errorf("release reservation: %w", err)
		}
		if released.LessThan(total) {
			s.logger.Warn("reservation smaller than transaction total",
				slog.String("transaction_id", t.ID),
				slog.String("released", released.String()),
				slog.String("total", total.String()))
		}

		t.Status = StatusFailed
		t.Description = reason
		t.UpdatedAt = time.Now().UTC()
		changed = true
		return s.repo.Update(ctx, t)
	})
	if err != nil {
		return Transaction{}, err
	}
	if changed {
		metrics.TransactionRecorded(string(t.Kind), string(t.Status))
		metrics.SettlementObserved(string(t.Kind), string(t.Status), t.CreatedAt)
		s.publish(ctx, notification.TypeTransactionFailed, t)
	}
	return t, nil
}

// IncrementConfirmations records one more external confirmation of a
// CONFIRMED transaction.
func (s *Service) IncrementConfirmations(ctx context.Context, id string) (Transaction, error) {
	var t Transaction
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.Status != StatusConfirmed {
			return &InvalidStateTransitionError{TransactionID: id, From: t.Status, To: StatusConfirmed}
		}
		t.Confirmations++
		t.UpdatedAt = time.Now().UTC()
		return s.repo.Update(ctx, t)
	})
	if err != nil {
		return Transaction{}, err
	}
	s.publish(ctx, notification.TypeTransactionConfirmation, t)
	return t, nil
}

// SetSettlementReference attaches the external reference once. Setting the
// same value again is a no-op.
func (s *Service) SetSettlementReference(ctx context.Context, id, reference string) (Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return Transaction{}, ErrInvalidReference
	}

	var t Transaction
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.SettlementReference == reference {
			return nil
		}
		if t.SettlementReference != "" {
			return fmt.Errorf("%w: transaction %s already has reference %s", ErrSettlementReferenceConflict, id, t.SettlementReference)
		}
		if other, err := s.repo.GetByReference(ctx, reference); err == nil && other.ID != id {
			return fmt.Errorf("%w: reference %s belongs to %s", ErrSettlementReferenceConflict, reference, other.ID)
		} else if err != nil && !errors.Is(err, ErrTransactionNotFound) {
			return err
		}
		t.SettlementReference = reference
		t.UpdatedAt = time.Now().UTC()
		return s.repo.Update(ctx, t)
	})
	if err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// Get returns a transaction by id.
func (s *Service) Get(ctx context.Context, id string) (Transaction, error) {
	return s.repo.Get(ctx, id)
}

// GetByReference returns the transaction carrying the settlement reference.
func (s *Service) GetByReference(ctx context.Context, reference string) (Transaction, error) {
	return s.repo.GetByReference(ctx, strings.TrimSpace(reference))
}

// ListByWallet returns transactions where the wallet is source or
// destination, newest first.
func (s *Service) ListByWallet(ctx context.Context, walletID string, filter ListFilter) ([]Transaction, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListByWallet(ctx, walletID, filter)
}

// ExchangeInput describes a conversion between a user wallet and the system wallet.
type ExchangeInput struct {
	WalletID       string
	SystemWalletID string
	FromCurrency   currency.Code
	ToCurrency     currency.Code
	// Amount is paid by the user in FromCurrency.
	Amount decimal.Decimal
	// NetAmount is received by the user in ToCurrency, after the exchange fee.
	NetAmount   decimal.Decimal
	Description string
}

// ExchangeResult holds both legs of an exchange.
type ExchangeResult struct {
	CorrelationID string      `json:"correlation_id"`
	Debit         Transaction `json:"debit"`
	Credit        Transaction `json:"credit"`
}

// Exchange records and settles both legs of a conversion in one unit: the
// user pays Amount to the system wallet and receives NetAmount from it.
func (s *Service) Exchange(ctx context.Context, in ExchangeInput) (ExchangeResult, error) {
	if in.FromCurrency == in.ToCurrency {
		return ExchangeResult{}, fmt.Errorf("%w: cannot exchange %s into itself", ErrInvalidAmount, in.FromCurrency)
	}

	res := ExchangeResult{CorrelationID: s.ids.New()}
	debitIn := CreateInput{
		FromWalletID:  in.WalletID,
		ToWalletID:    in.SystemWalletID,
		Currency:      in.FromCurrency,
		Amount:        in.Amount,
		Kind:          KindExchange,
		Description:   in.Description,
		CorrelationID: res.CorrelationID,
	}
	creditIn := CreateInput{
		FromWalletID:  in.SystemWalletID,
		ToWalletID:    in.WalletID,
		Currency:      in.ToCurrency,
		Amount:        in.NetAmount,
		Kind:          KindExchange,
		Description:   in.Description,
		CorrelationID: res.CorrelationID,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, leg := range []CreateInput{debitIn, creditIn} {
			if _, err := s.validate(ctx, leg); err != nil {
				return err
			}
		}
		// Both legs touch the same four rows; take them once, in key order,
		// before either leg locks anything.
		err := s.balances.Pin(ctx,
			balance.Key{WalletID: in.WalletID, Currency: in.FromCurrency},
			balance.Key{WalletID: in.WalletID, Currency: in.ToCurrency},
			balance.Key{WalletID: in.SystemWalletID, Currency: in.FromCurrency},
			balance.Key{WalletID: in.SystemWalletID, Currency: in.ToCurrency})
		if err != nil {
			return err
		}

		debit, err := s.create(ctx, debitIn)
		if err != nil {
			return err
		}
		if res.Debit, _, err = s.confirm(ctx, debit.ID); err != nil {
			return err
		}

		credit, err := s.create(ctx, creditIn)
		if err != nil {
			return fmt.Errorf("exchange payout: %w", err)
		}
		res.Credit, _, err = s.confirm(ctx, credit.ID)
		return err
	})
	if err != nil {
		return ExchangeResult{}, err
	}
	for _, t := range []Transaction{res.Debit, res.Credit} {
		metrics.TransactionRecorded(string(t.Kind), string(t.Status))
		s.publish(ctx, notification.TypeTransactionConfirmed, t)
	}
	return res, nil
}

func (s *Service) publish(ctx context.Context, eventType string, t Transaction) {
	if s.events == nil {
		return
	}
	var recipients []string
	for _, id := range []string{t.FromWalletID, t.ToWalletID} {
		w, err := s.wallets.Get(ctx, id)
		if err != nil {
			s.logger.Debug("event recipient lookup failed", slog.String("wallet_id", id), slog.Any("error", err))
			continue
		}
		if w.OwnerID == wallet.SystemOwnerID || (len(recipients) == 1 && recipients[0] == w.OwnerID) {
			continue
		}
		recipients = append(recipients, w.OwnerID)
	}
	s.events.Publish(notification.Event{
		Type:          eventType,
		TransactionID: t.ID,
		Kind:          string(t.Kind),
		Status:        string(t.Status),
		Currency:      string(t.Currency),
		Amount:        t.Amount.String(),
		Fee:           t.Fee.String(),
		FromWalletID:  t.FromWalletID,
		ToWalletID:    t.ToWalletID,
		Confirmations: t.Confirmations,
		Reason:        failureReason(t),
		OccurredAt:    t.UpdatedAt,
		Recipients:    recipients,
	})
}

func failureReason(t Transaction) string {
	if t.Status == StatusFailed {
		return t.Description
	}
	return ""
}
