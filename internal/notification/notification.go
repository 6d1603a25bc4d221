package notification

import (
	"context"
	"log/slog"
	"time"
)

// Event types emitted by the ledger after commit.
const (
	TypeTransactionCreated      = "transaction.created"
	TypeTransactionConfirmed    = "transaction.confirmed"
	TypeTransactionFailed       = "transaction.failed"
	TypeTransactionConfirmation = "transaction.confirmation"
)

// Event describes a committed change to a transaction.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	TransactionID string    `json:"transaction_id"`
	Kind          string    `json:"kind"`
	Status        string    `json:"status"`
	Currency      string    `json:"currency"`
	Amount        string    `json:"amount"`
	Fee           string    `json:"fee"`
	FromWalletID  string    `json:"from_wallet_id"`
	ToWalletID    string    `json:"to_wallet_id"`
	Confirmations int       `json:"confirmations"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	// Recipients are the owner ids that should see the event in real time.
	Recipients []string `json:"-"`
}

// ChangesBalances reports whether the event moved or reserved funds.
func (e Event) ChangesBalances() bool {
	return e.Type != TypeTransactionConfirmation
}

// Notifier delivers events to a downstream system.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// LoggerNotifier writes events to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the event to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("transaction event",
		slog.String("type", event.Type),
		slog.String("transaction_id", event.TransactionID),
		slog.String("kind", event.Kind),
		slog.String("status", event.Status),
		slog.String("amount", event.Amount),
		slog.String("currency", event.Currency),
	)
	return nil
}
