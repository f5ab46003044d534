package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/platform/db"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	stock Store
}

func (r txRepository) Stock() Store { return r.stock }

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, shared.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, txRepository{stock: NewTxStore(tx)})
	})
}

type txStore struct {
	tx pgx.Tx
}

// NewTxStore binds a Store to an open transaction.
func NewTxStore(tx pgx.Tx) Store {
	return &txStore{tx: tx}
}

const productColumns = `id, code, name, cost_price, weighted_average_cost, vat_rate, is_active, version`

func (s *txStore) loadProduct(ctx context.Context, query string, id int64) (Product, error) {
	var p Product
	err := s.tx.QueryRow(ctx, query, id).Scan(&p.ID, &p.Code, &p.Name, &p.CostPrice, &p.WeightedAverageCost, &p.VatRate, &p.IsActive, &p.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, fmt.Errorf("%w: %d", ErrProductNotFound, id)
		}
		return Product{}, err
	}
	rows, err := s.tx.Query(ctx, `SELECT unit_id, name, conversion_factor FROM product_units WHERE product_id=$1 ORDER BY unit_id`, id)
	if err != nil {
		return Product{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var u ProductUnit
		if err := rows.Scan(&u.UnitID, &u.Name, &u.ConversionFactor); err != nil {
			return Product{}, err
		}
		p.Units = append(p.Units, u)
	}
	return p, rows.Err()
}

func (s *txStore) Product(ctx context.Context, id int64) (Product, error) {
	return s.loadProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
}

func (s *txStore) ProductForUpdate(ctx context.Context, id int64) (Product, error) {
	return s.loadProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, id)
}

func (s *txStore) UpdateProductCost(ctx context.Context, p Product) error {
	tag, err := s.tx.Exec(ctx, `UPDATE products SET cost_price=$3, weighted_average_cost=$4, version=version+1
WHERE id=$1 AND version=$2`, p.ID, p.Version, p.CostPrice, p.WeightedAverageCost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

func (s *txStore) WarehouseProductForUpdate(ctx context.Context, warehouseID, productID int64) (WarehouseProduct, error) {
	wp := WarehouseProduct{WarehouseID: warehouseID, ProductID: productID}
	err := s.tx.QueryRow(ctx, `SELECT quantity, version FROM warehouse_products
WHERE warehouse_id=$1 AND product_id=$2 FOR UPDATE`, warehouseID, productID).Scan(&wp.Quantity, &wp.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return wp, ErrBalanceNotFound
		}
		return wp, err
	}
	return wp, nil
}

func (s *txStore) UpsertWarehouseProduct(ctx context.Context, wp WarehouseProduct) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO warehouse_products (warehouse_id, product_id, quantity, version)
VALUES ($1,$2,$3,$4)
ON CONFLICT (warehouse_id, product_id) DO UPDATE SET quantity=EXCLUDED.quantity, version=EXCLUDED.version`,
		wp.WarehouseID, wp.ProductID, wp.Quantity, wp.Version)
	return err
}

func (s *txStore) TotalStock(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity),0) FROM warehouse_products WHERE product_id=$1`, productID).Scan(&total)
	return total, err
}

func (s *txStore) InsertMovement(ctx context.Context, m *Movement) error {
	return s.tx.QueryRow(ctx, `INSERT INTO inventory_movements (warehouse_id, product_id, movement_type, base_quantity, unit_cost, total_cost,
balance_after, source_type, source_id, source_number, reversal_of_id, movement_date, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),$11,$12,NULLIF($13,'')) RETURNING id`,
		m.WarehouseID, m.ProductID, m.Type, m.Quantity, m.UnitCost, m.TotalCost, m.BalanceAfter, m.Source.Type, m.Source.ID,
		m.Source.Number, m.ReversalOfID, m.MovedAt, m.CreatedBy).Scan(&m.ID)
}

const movementColumns = `id, warehouse_id, product_id, movement_type, base_quantity, unit_cost, total_cost, balance_after,
source_type, source_id, COALESCE(source_number,''), reversal_of_id, movement_date, COALESCE(created_by,'')`

func (s *txStore) queryMovements(ctx context.Context, query string, args ...any) ([]Movement, error) {
	rows, err := s.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.WarehouseID, &m.ProductID, &m.Type, &m.Quantity, &m.UnitCost, &m.TotalCost, &m.BalanceAfter,
			&m.Source.Type, &m.Source.ID, &m.Source.Number, &m.ReversalOfID, &m.MovedAt, &m.CreatedBy); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *txStore) MovementsBySource(ctx context.Context, sourceType string, sourceID int64) ([]Movement, error) {
	return s.queryMovements(ctx, `SELECT `+movementColumns+` FROM inventory_movements
WHERE source_type=$1 AND source_id=$2 ORDER BY id`, sourceType, sourceID)
}

func (s *txStore) StockCard(ctx context.Context, warehouseID, productID int64) ([]Movement, error) {
	return s.queryMovements(ctx, `SELECT `+movementColumns+` FROM inventory_movements
WHERE warehouse_id=$1 AND product_id=$2 ORDER BY movement_date, id`, warehouseID, productID)
}
