package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/artcache/internal/platform/logger"
)

// TxFn is the body of a transaction. Returning an error rolls it back.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// RunInTransaction runs fn inside one transaction over db. The transaction
// commits only if fn returns nil; an error or a panic rolls it back so the
// rows fn touched keep their previous values. A panic is re-raised after the
// rollback.
func RunInTransaction(ctx context.Context, db *sql.DB, fn TxFn) error {
	log := logger.FromContext(ctx)
	start := time.Now()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("could not begin transaction", slog.Any("error", err))
		return fmt.Errorf("%w: begin: %w", ErrTransactionFailed, err)
	}

	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("rollback after panic failed", slog.Any("error", rbErr), slog.Any("panic", p))
		} else {
			log.Error("transaction rolled back after panic", slog.Any("panic", p))
		}
		panic(p)
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error("rollback failed",
				slog.Any("error", rbErr),
				slog.Any("cause", err))
			return errors.Join(err, fmt.Errorf("%w: rollback: %w", ErrTransactionFailed, rbErr))
		}
		log.Debug("transaction rolled back", slog.Any("cause", err))
		return err
	}

	if err := tx.Commit(); err != nil {
		log.Error("could not commit transaction", slog.Any("error", err))
		return fmt.Errorf("%w: commit: %w", ErrTransactionFailed, err)
	}

	log.Debug("transaction committed", slog.Duration("elapsed", time.Since(start)))
	return nil
}
