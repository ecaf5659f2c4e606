package db

import (
	"fmt"

	"github.com/mezonai/custody/logx"
)

// DBTxManager manages database transactions (batches and overlays) for atomic
// operations across multiple stores. It uses the shared DatabaseProvider.
type DBTxManager struct {
	provider DatabaseProvider
}

// NewDBTxManager creates a new transaction manager with the given provider
func NewDBTxManager(provider DatabaseProvider) *DBTxManager {
	return &DBTxManager{provider: provider}
}

// Provider returns the managed provider
func (tm *DBTxManager) Provider() DatabaseProvider {
	return tm.provider
}

// WithBatch executes the given function within a batch context.
// If the function returns nil, the batch is committed; otherwise, it's discarded.
func (tm *DBTxManager) WithBatch(fn func(batch DatabaseBatch) error) error {
	batch := tm.provider.Batch()
	defer func() {
		if err := batch.Close(); err != nil {
			logx.Error("TX_MANAGER", "Failed to close batch:", err)
		}
	}()

	if err := fn(batch); err != nil {
		batch.Reset()
		return fmt.Errorf("transaction failed: %w", err)
	}

	if err := batch.Write(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}

	return nil
}

// WithOverlay runs fn against a read-your-writes overlay of the provider.
// Writes reach the provider only if fn returns nil. The error from fn is returned unwrapped
// so callers can match it.
func (tm *DBTxManager) WithOverlay(fn func(view *Overlay) error) error {
	view := NewOverlay(tm.provider)
	if err := fn(view); err != nil {
		view.Discard()
		return err
	}
	if err := view.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}
