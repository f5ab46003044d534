package accounting

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/fiscal"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/platform/db"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

const journalNumberConstraint = "uq_journal_entries_number"

// Repository persists accounting entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	ledger   Store
	calendar fiscal.Store
}

func (r txRepository) Ledger() Store          { return r.ledger }
func (r txRepository) Calendar() fiscal.Store { return r.calendar }

// WithTx executes fn within a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, shared.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, txRepository{ledger: NewTxStore(tx), calendar: fiscal.NewTxStore(tx)})
	})
}

type txStore struct {
	tx pgx.Tx
}

// NewTxStore binds a Store to an open transaction.
func NewTxStore(tx pgx.Tx) Store {
	return &txStore{tx: tx}
}

const accountColumns = `id, company_id, code, name, type, parent_id, level, is_leaf, allow_posting, is_active, is_system, has_postings, is_deleted`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.Level, &a.IsLeaf, &a.AllowPosting,
		&a.IsActive, &a.IsSystem, &a.HasPostings, &a.IsDeleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (s *txStore) AccountByID(ctx context.Context, id int64) (Account, error) {
	return scanAccount(s.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (s *txStore) AccountByCode(ctx context.Context, code string) (Account, error) {
	acc, err := scanAccount(s.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1 AND NOT is_deleted`, code))
	if errors.Is(err, ErrAccountNotFound) {
		return Account{}, fmt.Errorf("%w: code %s", ErrAccountNotFound, code)
	}
	return acc, err
}

func (s *txStore) HasChildren(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE parent_id=$1 AND NOT is_deleted)`, id).Scan(&exists)
	return exists, err
}

func (s *txStore) MarkAccountUsed(ctx context.Context, id int64) error {
	_, err := s.tx.Exec(ctx, `UPDATE accounts SET has_postings=TRUE WHERE id=$1 AND NOT has_postings`, id)
	return err
}

func (s *txStore) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE NOT is_deleted ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *txStore) NextSequence(ctx context.Context, fiscalYearID int64) (int64, error) {
	var next int64
	err := s.tx.QueryRow(ctx, `INSERT INTO journal_sequences (fiscal_year_id, last_number) VALUES ($1, 1)
ON CONFLICT (fiscal_year_id) DO UPDATE SET last_number = journal_sequences.last_number + 1
RETURNING last_number`, fiscalYearID).Scan(&next)
	return next, err
}

func (s *txStore) PeekSequence(ctx context.Context, fiscalYearID int64) (int64, error) {
	var last int64
	err := s.tx.QueryRow(ctx, `SELECT COALESCE((SELECT last_number FROM journal_sequences WHERE fiscal_year_id=$1), 0)`, fiscalYearID).Scan(&last)
	return last, err
}

func (s *txStore) InsertJournal(ctx context.Context, e *JournalEntry) error {
	debit, credit := e.Totals()
	err := s.tx.QueryRow(ctx, `INSERT INTO journal_entries (company_id, journal_number, draft_code, journal_date, posted_at, description, reference,
status, source_type, source_id, fiscal_year_id, fiscal_period_id, reversal_of_id, reversal_reason, posted_by, total_debit, total_credit,
version, created_at, created_by)
VALUES ($1,NULLIF($2,''),$3,$4,$5,$6,NULLIF($7,''),$8,$9,$10,$11,$12,$13,NULLIF($14,''),NULLIF($15,''),$16,$17,$18,$19,$20) RETURNING id`,
		e.CompanyID, e.Number, e.DraftCode, e.Date, e.PostedAt, e.Description, e.Reference, e.Status, e.SourceType, e.SourceID,
		e.FiscalYearID, e.PeriodID, e.ReversalOfID, e.ReversalReason, e.PostedBy, debit, credit, e.Version, e.CreatedAt, e.CreatedBy).Scan(&e.ID)
	if err != nil {
		if db.IsUniqueViolation(err, journalNumberConstraint) {
			return fmt.Errorf("%w: %s", ErrDuplicateNumber, e.Number)
		}
		return err
	}
	for i := range e.Lines {
		line := &e.Lines[i]
		line.JournalID = e.ID
		if err := s.tx.QueryRow(ctx, `INSERT INTO journal_lines (journal_entry_id, line_number, account_id, debit, credit, description, dim_warehouse_id)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7) RETURNING id`, e.ID, line.LineNumber, line.AccountID, line.Debit, line.Credit, line.Description, line.DimWarehouseID).Scan(&line.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *txStore) UpdateJournal(ctx context.Context, e JournalEntry, expectedVersion int64) error {
	tag, err := s.tx.Exec(ctx, `UPDATE journal_entries SET status=$3, reversed_by_id=$4, version=$5, updated_at=$6, updated_by=NULLIF($7,''),
is_deleted=$8, deleted_at=$9, deleted_by=NULLIF($10,'')
WHERE id=$1 AND version=$2`, e.ID, expectedVersion, e.Status, e.ReversedByID, e.Version, e.UpdatedAt, e.UpdatedBy,
		e.IsDeleted, e.DeletedAt, e.DeletedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

const journalColumns = `id, company_id, COALESCE(journal_number,''), draft_code, journal_date, posted_at, description, COALESCE(reference,''),
status, source_type, source_id, fiscal_year_id, fiscal_period_id, reversal_of_id, reversed_by_id, COALESCE(reversal_reason,''),
COALESCE(posted_by,''), version, created_at, COALESCE(created_by,''), updated_at, COALESCE(updated_by,''), is_deleted`

func (s *txStore) loadJournal(ctx context.Context, query string, id int64) (JournalEntry, error) {
	var e JournalEntry
	err := s.tx.QueryRow(ctx, query, id).Scan(&e.ID, &e.CompanyID, &e.Number, &e.DraftCode, &e.Date, &e.PostedAt, &e.Description,
		&e.Reference, &e.Status, &e.SourceType, &e.SourceID, &e.FiscalYearID, &e.PeriodID, &e.ReversalOfID, &e.ReversedByID,
		&e.ReversalReason, &e.PostedBy, &e.Version, &e.CreatedAt, &e.CreatedBy, &e.UpdatedAt, &e.UpdatedBy, &e.IsDeleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, fmt.Errorf("%w: %d", ErrJournalNotFound, id)
		}
		return JournalEntry{}, err
	}
	rows, err := s.tx.Query(ctx, `SELECT id, journal_entry_id, line_number, account_id, debit, credit, COALESCE(description,''), dim_warehouse_id
FROM journal_lines WHERE journal_entry_id=$1 ORDER BY line_number`, e.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.JournalID, &l.LineNumber, &l.AccountID, &l.Debit, &l.Credit, &l.Description, &l.DimWarehouseID); err != nil {
			return JournalEntry{}, err
		}
		e.Lines = append(e.Lines, l)
	}
	return e, rows.Err()
}

func (s *txStore) JournalByID(ctx context.Context, id int64) (JournalEntry, error) {
	return s.loadJournal(ctx, `SELECT `+journalColumns+` FROM journal_entries WHERE id=$1`, id)
}

func (s *txStore) JournalForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	return s.loadJournal(ctx, `SELECT `+journalColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id)
}

func (s *txStore) AccountBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.tx.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit - l.credit), 0) FROM journal_lines l
JOIN journal_entries e ON e.id = l.journal_entry_id
WHERE l.account_id=$1 AND e.status IN ('POSTED','REVERSED')`, accountID).Scan(&balance)
	return balance, err
}

func (s *txStore) YearAccountTotals(ctx context.Context, fiscalYearID int64) ([]AccountTotal, error) {
	rows, err := s.tx.Query(ctx, `SELECT a.id, a.code, a.name, a.type, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.journal_entry_id
JOIN accounts a ON a.id = l.account_id
WHERE e.fiscal_year_id=$1 AND e.status IN ('POSTED','REVERSED')
GROUP BY a.id, a.code, a.name, a.type
ORDER BY a.code`, fiscalYearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var totals []AccountTotal
	for rows.Next() {
		var t AccountTotal
		if err := rows.Scan(&t.AccountID, &t.Code, &t.Name, &t.Type, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (s *txStore) HasPostedEntry(ctx context.Context, periodID int64, source SourceType) (bool, error) {
	var exists bool
	err := s.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM journal_entries WHERE fiscal_period_id=$1 AND source_type=$2 AND status='POSTED'
AND reversal_of_id IS NULL AND reversed_by_id IS NULL)`,
		periodID, source).Scan(&exists)
	return exists, err
}

// UnbalancedEntry is a posted entry whose stored lines do not balance.
type UnbalancedEntry struct {
	ID     int64
	Number string
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// IntegrityReport lists ledger anomalies of one fiscal year.
type IntegrityReport struct {
	FiscalYearID   int64
	Unbalanced     []UnbalancedEntry
	MissingNumbers []int64
}

// Anomalies counts every finding.
func (r IntegrityReport) Anomalies() int {
	return len(r.Unbalanced) + len(r.MissingNumbers)
}

// ActiveYearIDs returns fiscal years that can still receive postings or have posted entries.
func (r *Repository) ActiveYearIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM fiscal_years WHERE status <> 'SETUP' ORDER BY year`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CheckIntegrity scans one fiscal year for unbalanced entries and journal number gaps.
func (r *Repository) CheckIntegrity(ctx context.Context, fiscalYearID int64) (IntegrityReport, error) {
	report := IntegrityReport{FiscalYearID: fiscalYearID}
	rows, err := r.pool.Query(ctx, `SELECT e.id, e.journal_number, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journal_entries e LEFT JOIN journal_lines l ON l.journal_entry_id = e.id
WHERE e.fiscal_year_id=$1 AND e.status IN ('POSTED','REVERSED')
GROUP BY e.id, e.journal_number
HAVING COALESCE(SUM(l.debit),0) <> COALESCE(SUM(l.credit),0)`, fiscalYearID)
	if err != nil {
		return report, fmt.Errorf("accounting: integrity balance scan: %w", err)
	}
	for rows.Next() {
		var u UnbalancedEntry
		if err := rows.Scan(&u.ID, &u.Number, &u.Debit, &u.Credit); err != nil {
			rows.Close()
			return report, err
		}
		report.Unbalanced = append(report.Unbalanced, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return report, err
	}

	numbers, err := r.pool.Query(ctx, `SELECT journal_number FROM journal_entries
WHERE fiscal_year_id=$1 AND journal_number IS NOT NULL`, fiscalYearID)
	if err != nil {
		return report, fmt.Errorf("accounting: integrity number scan: %w", err)
	}
	defer numbers.Close()
	var seqs []int64
	for numbers.Next() {
		var number string
		if err := numbers.Scan(&number); err != nil {
			return report, err
		}
		_, seq, err := ParseJournalNumber(number)
		if err != nil {
			return report, err
		}
		seqs = append(seqs, seq)
	}
	if err := numbers.Err(); err != nil {
		return report, err
	}
	report.MissingNumbers = MissingSequences(seqs)
	return report, nil
}
