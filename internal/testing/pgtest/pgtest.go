// Package pgtest prepares a Postgres database for integration tests. Tests
// are skipped unless TEST_DATABASE_URL is set.
package pgtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/platform/db"
)

// EnvDatabaseURL names the variable holding the integration database DSN.
const EnvDatabaseURL = "TEST_DATABASE_URL"

const truncateAll = `TRUNCATE audit_logs, document_entries, document_lines, documents, document_sequences,
cashboxes, inventory_movements, warehouse_products, product_units, products, journal_lines,
journal_entries, journal_sequences, fiscal_periods, fiscal_years, accounts RESTART IDENTITY CASCADE`

// Pool connects, applies the schema and empties every table.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvDatabaseURL)
	if dsn == "" {
		t.Skipf("%s not set", EnvDatabaseURL)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.ApplySchema(ctx, pool))
	_, err = pool.Exec(ctx, truncateAll)
	require.NoError(t, err)
	return pool
}

var systemAccounts = []struct {
	code, name, kind string
}{
	{"1111", "Main cashbox", "ASSET"},
	{"1112", "Bank account", "ASSET"},
	{"1121", "Accounts receivable", "ASSET"},
	{"1131", "Inventory", "ASSET"},
	{"1141", "VAT input", "ASSET"},
	{"2111", "Accounts payable", "LIABILITY"},
	{"2121", "VAT output", "LIABILITY"},
	{"3121", "Retained earnings", "EQUITY"},
	{"4111", "Sales", "REVENUE"},
	{"4112", "Inventory adjustment income", "REVENUE"},
	{"5111", "Cost of goods sold", "COGS"},
	{"5112", "Inventory adjustment expense", "COGS"},
}

// SeedAccounts inserts the leaf accounts referenced by the default account
// codes and returns their ids by code.
func SeedAccounts(t *testing.T, pool *pgxpool.Pool) map[string]int64 {
	t.Helper()
	ids := make(map[string]int64, len(systemAccounts))
	for _, a := range systemAccounts {
		var id int64
		err := pool.QueryRow(context.Background(),
			`INSERT INTO accounts (code, name, type, is_system) VALUES ($1, $2, $3, TRUE) RETURNING id`,
			a.code, a.name, a.kind).Scan(&id)
		require.NoError(t, err)
		ids[a.code] = id
	}
	return ids
}

// SeedProduct inserts an active product without units.
func SeedProduct(t *testing.T, pool *pgxpool.Pool, code string) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO products (code, name) VALUES ($1, $1) RETURNING id`, code).Scan(&id)
	require.NoError(t, err)
	return id
}
