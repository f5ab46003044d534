package fiscal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/platform/db"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// Repository persists fiscal years and periods.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn within a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	if r == nil || r.pool == nil {
		return errors.New("fiscal repository not initialised")
	}
	return db.WithTx(ctx, r.pool, shared.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

type txStore struct {
	tx pgx.Tx
}

// NewTxStore binds a Store to an open transaction.
func NewTxStore(tx pgx.Tx) Store {
	return &txStore{tx: tx}
}

const yearColumns = `id, company_id, year, start_date, end_date, status, closed_at, COALESCE(closed_by, ''), created_at, COALESCE(created_by, ''), updated_at, COALESCE(updated_by, '')`

func scanYear(row pgx.Row) (Year, error) {
	var y Year
	err := row.Scan(&y.ID, &y.CompanyID, &y.Year, &y.StartDate, &y.EndDate, &y.Status, &y.ClosedAt, &y.ClosedBy,
		&y.CreatedAt, &y.CreatedBy, &y.UpdatedAt, &y.UpdatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Year{}, ErrYearNotFound
		}
		return Year{}, err
	}
	return y, nil
}

func (s *txStore) withPeriods(ctx context.Context, y Year) (Year, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE fiscal_year_id=$1 ORDER BY period_number`, y.ID)
	if err != nil {
		return Year{}, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return Year{}, err
		}
		y.Periods = append(y.Periods, p)
	}
	return y, rows.Err()
}

func (s *txStore) ActiveYear(ctx context.Context) (Year, error) {
	y, err := scanYear(s.tx.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE status=$1 LIMIT 1`, YearStatusActive))
	if err != nil {
		if errors.Is(err, ErrYearNotFound) {
			return Year{}, ErrNoActiveYear
		}
		return Year{}, err
	}
	return s.withPeriods(ctx, y)
}

func (s *txStore) YearByID(ctx context.Context, id int64) (Year, error) {
	y, err := scanYear(s.tx.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE id=$1`, id))
	if err != nil {
		return Year{}, err
	}
	return s.withPeriods(ctx, y)
}

func (s *txStore) YearForUpdate(ctx context.Context, id int64) (Year, error) {
	y, err := scanYear(s.tx.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Year{}, err
	}
	return s.withPeriods(ctx, y)
}

func (s *txStore) YearExists(ctx context.Context, year int) (bool, error) {
	var exists bool
	err := s.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM fiscal_years WHERE year=$1)`, year).Scan(&exists)
	return exists, err
}

const periodColumns = `id, fiscal_year_id, period_number, year, month, start_date, end_date, status, locked_at, COALESCE(locked_by, ''), COALESCE(unlock_reason, '')`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.FiscalYearID, &p.Number, &p.Year, &p.Month, &p.StartDate, &p.EndDate, &p.Status,
		&p.LockedAt, &p.LockedBy, &p.UnlockReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (s *txStore) PeriodByID(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(s.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE id=$1`, id))
}

func (s *txStore) InsertYear(ctx context.Context, y *Year) error {
	err := s.tx.QueryRow(ctx, `INSERT INTO fiscal_years (company_id, year, start_date, end_date, status, created_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, y.CompanyID, y.Year, y.StartDate, y.EndDate, y.Status, y.CreatedAt, y.CreatedBy).Scan(&y.ID)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return fmt.Errorf("%w: %d", ErrYearExists, y.Year)
		}
		return err
	}
	for i := range y.Periods {
		p := &y.Periods[i]
		p.FiscalYearID = y.ID
		if err := s.tx.QueryRow(ctx, `INSERT INTO fiscal_periods (fiscal_year_id, period_number, year, month, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, y.ID, p.Number, p.Year, p.Month, p.StartDate, p.EndDate, p.Status).Scan(&p.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *txStore) UpdateYear(ctx context.Context, y Year) error {
	tag, err := s.tx.Exec(ctx, `UPDATE fiscal_years SET status=$2, closed_at=$3, closed_by=NULLIF($4, ''), updated_at=$5, updated_by=NULLIF($6, '')
WHERE id=$1`, y.ID, y.Status, y.ClosedAt, y.ClosedBy, y.UpdatedAt, y.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrYearNotFound
	}
	return nil
}

func (s *txStore) UpdatePeriod(ctx context.Context, p Period) error {
	tag, err := s.tx.Exec(ctx, `UPDATE fiscal_periods SET status=$2, locked_at=$3, locked_by=NULLIF($4, ''), unlock_reason=NULLIF($5, '')
WHERE id=$1`, p.ID, p.Status, p.LockedAt, p.LockedBy, p.UnlockReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (s *txStore) CountDrafts(ctx context.Context, from, to time.Time) (int, error) {
	var count int
	err := s.tx.QueryRow(ctx, `SELECT COUNT(*) FROM documents
WHERE status='DRAFT' AND NOT is_deleted AND family NOT IN ('purchase_quotation','sales_quotation')
AND document_date BETWEEN $1 AND $2`, from, to).Scan(&count)
	return count, err
}
