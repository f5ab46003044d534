package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// TxOptions maps an isolation level to pgx options.
func TxOptions(level shared.IsolationLevel) pgx.TxOptions {
	switch level {
	case shared.RepeatableRead:
		return pgx.TxOptions{IsoLevel: pgx.RepeatableRead}
	case shared.Serializable:
		return pgx.TxOptions{IsoLevel: pgx.Serializable}
	default:
		return pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	}
}

// WithTx executes a function within a transaction at the given isolation level.
// The context stays honoured until commit.
func WithTx(ctx context.Context, pool *pgxpool.Pool, level shared.IsolationLevel, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, TxOptions(level))
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
