package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/fiscal"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/inventory"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/platform/db"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/platform/memstore"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/posting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
	"github.com/peterpeto56u-code/MarcoERP-sub007/jobs"
)

// Backend bundles the store adapters selected by STORE_DRIVER.
type Backend struct {
	UnitOfWork posting.UnitOfWork
	Audit      posting.AuditPort
	Accounting accounting.RepositoryPort
	Fiscal     fiscal.RepositoryPort
	Inventory  inventory.RepositoryPort
	Scanner    jobs.LedgerScanner

	pool *pgxpool.Pool
}

// OpenBackend connects the configured store. The memory driver bootstraps a
// chart of accounts and an active fiscal year.
func OpenBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (*Backend, error) {
	if cfg.StoreDriver == StoreDriverMemory {
		store := memstore.New()
		year := cfg.SeedYear
		if year == 0 {
			year = time.Now().UTC().Year()
		}
		if _, err := store.Bootstrap(year); err != nil {
			return nil, fmt.Errorf("app: bootstrap memory store: %w", err)
		}
		logger.Info("using in-memory store", slog.Int("fiscal_year", year))
		return &Backend{
			UnitOfWork: store,
			Audit:      store,
			Accounting: store.Accounting(),
			Fiscal:     store.Fiscal(),
			Inventory:  store.Inventory(),
			Scanner:    store,
		}, nil
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, err
	}
	if cfg.ApplySchema {
		if err := db.ApplySchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	ledger := accounting.NewRepository(pool)
	return &Backend{
		UnitOfWork: posting.NewRepository(pool),
		Audit:      shared.NewAuditLogger(pool),
		Accounting: ledger,
		Fiscal:     fiscal.NewRepository(pool),
		Inventory:  inventory.NewRepository(pool),
		Scanner:    ledger,
		pool:       pool,
	}, nil
}

// Close releases the database pool when one is open.
func (b *Backend) Close() {
	if b != nil && b.pool != nil {
		b.pool.Close()
	}
}
