package utils

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gohye/bidhouse/bidhouse/database/repositories"
)

// TransactionManager runs ledger transactions and retries the ones the store
// aborted because of a concurrent writer.
type TransactionManager struct {
	store      repositories.AuctionStore
	maxRetries int
	backoff    time.Duration
}

func NewTransactionManager(store repositories.AuctionStore, maxRetries int) *TransactionManager {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &TransactionManager{
		store:      store,
		maxRetries: maxRetries,
		backoff:    ConflictRetryBackoff,
	}
}

func (tm *TransactionManager) Store() repositories.AuctionStore {
	return tm.store
}

// WithTransaction executes fn inside a store transaction. fn may run more than
// once, so it must not leak state from an aborted attempt.
func (tm *TransactionManager) WithTransaction(ctx context.Context, fn func(context.Context, repositories.AuctionTx) error) error {
	for attempt := 0; ; attempt++ {
		err := tm.store.WithTx(ctx, fn)
		if err == nil || !errors.Is(err, repositories.ErrConflict) {
			return err
		}
		if attempt >= tm.maxRetries {
			return err
		}

		slog.Debug("Retrying conflicted transaction",
			slog.String("type", "db"),
			slog.Int("attempt", attempt+1))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tm.backoff << uint(attempt)):
		}
	}
}
