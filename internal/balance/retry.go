package balance

import (
	"context"
	"errors"
	"time"

	"github.com/cedar-wallet/cedar_wallet/internal/storage"
)

const (
	defaultRetryAttempts  = 5
	defaultRetryBaseDelay = 10 * time.Millisecond
	defaultRetryMaxDelay  = 200 * time.Millisecond
)

// RetryPolicy bounds how often work is retried after a conflict. A standalone
// row mutation retries itself; inside an enclosing unit the conflict is
// returned so the whole unit can be retried by Units.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// OnRetry, when set, is called before each new attempt.
	OnRetry func(attempt int, err error)
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: defaultRetryAttempts, BaseDelay: defaultRetryBaseDelay, MaxDelay: defaultRetryMaxDelay}
}

// Do runs fn, retrying conflicts with exponential backoff.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 || storage.InTx(ctx) {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !storage.IsRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	if !errors.Is(err, ErrConcurrencyConflict) {
		return errors.Join(ErrConcurrencyConflict, err)
	}
	return err
}

// Units returns a transactor that runs each outermost unit under p. A unit
// that ends in a conflict has been rolled back as a whole, so it is safe to
// run fn again from the start. Units joined from an enclosing one are not
// retried on their own.
func (p RetryPolicy) Units(tx storage.Transactor) storage.Transactor {
	return retryingTransactor{tx: tx, policy: p}
}

type retryingTransactor struct {
	tx     storage.Transactor
	policy RetryPolicy
}

func (r retryingTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if storage.InTx(ctx) {
		return r.tx.WithinTx(ctx, fn)
	}
	return r.policy.Do(ctx, func() error {
		return r.tx.WithinTx(ctx, fn)
	})
}
