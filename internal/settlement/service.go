// Package settlement applies results reported by the external settlement
// backend to the transaction ledger.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cedar-wallet/cedar_wallet/internal/balance"
	"github.com/cedar-wallet/cedar_wallet/internal/ledger"
)

// ErrInvalidSignal is returned for signals that can never be applied.
var ErrInvalidSignal = errors.New("invalid settlement signal")

// SignalType is what the backend observed for a transaction.
type SignalType string

const (
	SignalConfirmed    SignalType = "confirmed"
	SignalFailed       SignalType = "failed"
	SignalConfirmation SignalType = "confirmation"
)

// Signal is one report from the settlement backend.
type Signal struct {
	TransactionID string     `json:"transaction_id" validate:"required"`
	Type          SignalType `json:"type" validate:"required,oneof=confirmed failed confirmation"`
	Reference     string     `json:"reference,omitempty" validate:"max=128"`
	Reason        string     `json:"reason,omitempty" validate:"max=255"`
}

// Ledger is the subset of the ledger a signal can drive.
type Ledger interface {
	SetSettlementReference(ctx context.Context, id, reference string) (ledger.Transaction, error)
	ConfirmTransaction(ctx context.Context, id string) (ledger.Transaction, error)
	FailTransaction(ctx context.Context, id, reason string) (ledger.Transaction, error)
	IncrementConfirmations(ctx context.Context, id string) (ledger.Transaction, error)
}

// Service maps signals onto ledger operations.
type Service struct {
	ledger Ledger
	logger *slog.Logger
}

func NewService(ledger Ledger, logger *slog.Logger) *Service {
	return &Service{ledger: ledger, logger: logger}
}

// Apply drives the ledger for one signal. Replaying a signal is safe: the
// ledger treats repeated confirms and fails as no-ops.
func (s *Service) Apply(ctx context.Context, sig Signal) (ledger.Transaction, error) {
	sig.TransactionID = strings.TrimSpace(sig.TransactionID)
	sig.Reference = strings.TrimSpace(sig.Reference)
	if sig.TransactionID == "" {
		return ledger.Transaction{}, fmt.Errorf("%w: transaction id is required", ErrInvalidSignal)
	}

	var (
		t   ledger.Transaction
		err error
	)
	switch sig.Type {
	case SignalConfirmed:
		if sig.Reference != "" {
			if _, err = s.ledger.SetSettlementReference(ctx, sig.TransactionID, sig.Reference); err != nil {
				return ledger.Transaction{}, err
			}
		}
		t, err = s.ledger.ConfirmTransaction(ctx, sig.TransactionID)
	case SignalFailed:
		t, err = s.ledger.FailTransaction(ctx, sig.TransactionID, sig.Reason)
	case SignalConfirmation:
		t, err = s.ledger.IncrementConfirmations(ctx, sig.TransactionID)
	default:
		return ledger.Transaction{}, fmt.Errorf("%w: unknown type %q", ErrInvalidSignal, sig.Type)
	}
	if err != nil {
		return ledger.Transaction{}, err
	}

	s.logger.Info("settlement signal applied",
		slog.String("transaction_id", t.ID),
		slog.String("signal", string(sig.Type)),
		slog.String("status", string(t.Status)),
		slog.Int("confirmations", t.Confirmations),
	)
	return t, nil
}

// Transient reports whether retrying the same signal later can succeed.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidSignal),
		errors.Is(err, ledger.ErrTransactionNotFound),
		errors.Is(err, ledger.ErrInvalidStateTransition),
		errors.Is(err, ledger.ErrSettlementReferenceConflict),
		errors.Is(err, ledger.ErrInvalidReference),
		errors.Is(err, balance.ErrInsufficientAvailableBalance),
		errors.Is(err, balance.ErrInvalidAmount):
		return false
	}
	return true
}
