package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/opencurate/curation-engine/pkg/apperrors"
)

// TxRunner runs a function inside a database transaction whose scope is
// carried on the context. Services depend on this interface so tests can
// substitute a pass-through runner.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const (
	maxTxAttempts  = 3
	txRetryBackoff = 25 * time.Millisecond
)

// InTx executes fn inside a transaction. The transaction is injected
// into fn's context as the active Scope, so every repository call inside
// fn shares it. Serialization failures and deadlocks are retried up to
// maxTxAttempts before surfacing ErrConcurrentUpdateConflict.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * txRetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = db.runTx(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !isSerializationFailure(lastErr) {
			return lastErr
		}
	}
	return apperrors.ErrConcurrentUpdateConflict
}

func (db *DB) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}

	txCtx := SetScope(ctx, &Scope{Q: tx})
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

// isSerializationFailure reports whether the error is a retryable
// concurrency conflict: serialization_failure (40001) or
// deadlock_detected (40P01).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

var _ TxRunner = (*DB)(nil)
