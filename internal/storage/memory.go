package storage

import (
	"context"
	"sync"
)

type memTxKey struct{}

type memTx struct {
	undo []func()
}

// Memory is a process-local Transactor. Units are serialized by a single
// mutex and undone from a journal when fn fails. The in-memory repositories
// run every operation through it so they share one consistent view.
type Memory struct {
	mu sync.Mutex
}

// NewMemory builds an in-memory transactor.
func NewMemory() *Memory {
	return &Memory{}
}

// WithinTx runs fn under the memory lock, joining the unit in ctx if present.
func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

// OnRollback registers undo to run if the unit in ctx fails.
func OnRollback(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}
