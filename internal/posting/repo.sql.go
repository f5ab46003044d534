package posting

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/fiscal"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/inventory"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/platform/db"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

const documentNumberConstraint = "uq_documents_number"

// Repository is the PostgreSQL unit of work of the posting engine.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type pgTx struct {
	documents DocumentStore
	ledger    accounting.Store
	calendar  fiscal.Store
	stock     inventory.Store
	cashboxes CashboxStore
}

func (t pgTx) Documents() DocumentStore { return t.documents }
func (t pgTx) Ledger() accounting.Store { return t.ledger }
func (t pgTx) Calendar() fiscal.Store   { return t.calendar }
func (t pgTx) Stock() inventory.Store   { return t.stock }
func (t pgTx) Cashboxes() CashboxStore  { return t.cashboxes }

// WithTx implements UnitOfWork. Every store shares the same pgx transaction.
func (r *Repository) WithTx(ctx context.Context, level shared.IsolationLevel, fn func(context.Context, Tx) error) error {
	if r == nil || r.pool == nil {
		return errors.New("posting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, level, func(tx pgx.Tx) error {
		store := &txStore{tx: tx}
		return fn(ctx, pgTx{
			documents: store,
			ledger:    accounting.NewTxStore(tx),
			calendar:  fiscal.NewTxStore(tx),
			stock:     inventory.NewTxStore(tx),
			cashboxes: store,
		})
	})
}

type txStore struct {
	tx pgx.Tx
}

const documentColumns = `id, company_id, family, document_number, document_date, status, COALESCE(description,''), COALESCE(reference,''),
party_id, COALESCE(warehouse_id,0), vat_inclusive, cashbox_id, target_cashbox_id, contra_account_id, amount, settles_document_id, paid_amount,
original_invoice_id, valid_until, quotation_id, converted_to_id,
sub_total, discount_total, net_total, vat_total, grand_total, cost_total, total_profit, journal_entry_id, cogs_journal_entry_id,
posted_at, COALESCE(posted_by,''), cancelled_at, COALESCE(cancelled_by,''), version, created_at, COALESCE(created_by,''),
updated_at, COALESCE(updated_by,''), is_deleted, deleted_at, COALESCE(deleted_by,'')`

func (s *txStore) load(ctx context.Context, query string, id int64) (Document, error) {
	var d Document
	err := s.tx.QueryRow(ctx, query, id).Scan(&d.ID, &d.CompanyID, &d.Family, &d.Number, &d.Date, &d.Status, &d.Description, &d.Reference,
		&d.PartyID, &d.WarehouseID, &d.VatInclusive, &d.CashboxID, &d.TargetCashboxID, &d.ContraAccountID, &d.Amount, &d.SettlesDocumentID,
		&d.PaidAmount, &d.OriginalInvoiceID, &d.ValidUntil, &d.QuotationID, &d.ConvertedToID, &d.SubTotal, &d.DiscountTotal, &d.NetTotal, &d.VatTotal, &d.GrandTotal, &d.CostTotal, &d.TotalProfit,
		&d.JournalEntryID, &d.CogsJournalEntryID, &d.PostedAt, &d.PostedBy, &d.CancelledAt, &d.CancelledBy, &d.Version,
		&d.CreatedAt, &d.CreatedBy, &d.UpdatedAt, &d.UpdatedBy, &d.IsDeleted, &d.DeletedAt, &d.DeletedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, fmt.Errorf("%w: %d", ErrDocumentNotFound, id)
		}
		return Document{}, err
	}
	rows, err := s.tx.Query(ctx, `SELECT id, document_id, line_number, product_id, COALESCE(unit_id,0), COALESCE(warehouse_id,0), quantity,
unit_price, discount_percent, vat_rate, conversion_factor, cost_price, system_quantity, base_quantity, sub_total, discount_amount,
net_total, vat_amount, total_with_vat, cost_total, total_profit, profit_margin_percent
FROM document_lines WHERE document_id=$1 ORDER BY line_number`, d.ID)
	if err != nil {
		return Document{}, err
	}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.LineNumber, &l.ProductID, &l.UnitID, &l.WarehouseID, &l.Quantity, &l.UnitPrice,
			&l.DiscountPercent, &l.VatRate, &l.ConversionFactor, &l.CostPrice, &l.SystemQuantity, &l.Calc.BaseQuantity, &l.Calc.SubTotal,
			&l.Calc.DiscountAmount, &l.Calc.NetTotal, &l.Calc.VatAmount, &l.Calc.TotalWithVat, &l.Calc.CostTotal,
			&l.Calc.TotalProfit, &l.Calc.ProfitMarginPercent); err != nil {
			rows.Close()
			return Document{}, err
		}
		d.Lines = append(d.Lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Document{}, err
	}
	entries, err := s.tx.Query(ctx, `SELECT account_id, debit, credit, COALESCE(description,'')
FROM document_entries WHERE document_id=$1 ORDER BY line_number`, d.ID)
	if err != nil {
		return Document{}, err
	}
	defer entries.Close()
	for entries.Next() {
		var e Entry
		if err := entries.Scan(&e.AccountID, &e.Debit, &e.Credit, &e.Description); err != nil {
			return Document{}, err
		}
		d.Entries = append(d.Entries, e)
	}
	return d, entries.Err()
}

func (s *txStore) Get(ctx context.Context, id int64) (Document, error) {
	return s.load(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, id)
}

func (s *txStore) GetForUpdate(ctx context.Context, id int64) (Document, error) {
	return s.load(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1 FOR UPDATE`, id)
}

func (s *txStore) Insert(ctx context.Context, d *Document) error {
	err := s.tx.QueryRow(ctx, `INSERT INTO documents (company_id, family, document_number, document_date, status, description, reference,
party_id, warehouse_id, vat_inclusive, cashbox_id, target_cashbox_id, contra_account_id, amount, settles_document_id, paid_amount,
original_invoice_id, valid_until, quotation_id,
sub_total, discount_total, net_total, vat_total, grand_total, cost_total, total_profit, version, created_at, created_by)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,''),$8,NULLIF($9,0),$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,
$26,$27,$28,$29)
RETURNING id`,
		d.CompanyID, d.Family, d.Number, d.Date, d.Status, d.Description, d.Reference, d.PartyID, d.WarehouseID, d.VatInclusive,
		d.CashboxID, d.TargetCashboxID, d.ContraAccountID, d.Amount, d.SettlesDocumentID, d.PaidAmount,
		d.OriginalInvoiceID, d.ValidUntil, d.QuotationID, d.SubTotal, d.DiscountTotal,
		d.NetTotal, d.VatTotal, d.GrandTotal, d.CostTotal, d.TotalProfit, d.Version, d.CreatedAt, d.CreatedBy).Scan(&d.ID)
	if err != nil {
		if db.IsUniqueViolation(err, documentNumberConstraint) {
			return fmt.Errorf("%w: %s", ErrDuplicateNumber, d.Number)
		}
		return err
	}
	for i := range d.Lines {
		l := &d.Lines[i]
		l.DocumentID = d.ID
		if err := s.tx.QueryRow(ctx, `INSERT INTO document_lines (document_id, line_number, product_id, unit_id, warehouse_id, quantity,
unit_price, discount_percent, vat_rate, conversion_factor, cost_price, system_quantity, base_quantity, sub_total, discount_amount,
net_total, vat_amount, total_with_vat, cost_total, total_profit, profit_margin_percent)
VALUES ($1,$2,$3,NULLIF($4,0),NULLIF($5,0),$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21) RETURNING id`,
			d.ID, l.LineNumber, l.ProductID, l.UnitID, l.WarehouseID, l.Quantity, l.UnitPrice, l.DiscountPercent, l.VatRate,
			l.ConversionFactor, l.CostPrice, l.SystemQuantity, l.Calc.BaseQuantity, l.Calc.SubTotal, l.Calc.DiscountAmount, l.Calc.NetTotal,
			l.Calc.VatAmount, l.Calc.TotalWithVat, l.Calc.CostTotal, l.Calc.TotalProfit, l.Calc.ProfitMarginPercent).Scan(&l.ID); err != nil {
			return err
		}
	}
	for i, e := range d.Entries {
		if _, err := s.tx.Exec(ctx, `INSERT INTO document_entries (document_id, line_number, account_id, debit, credit, description)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,''))`, d.ID, i+1, e.AccountID, e.Debit, e.Credit, e.Description); err != nil {
			return err
		}
	}
	return nil
}

func (s *txStore) Update(ctx context.Context, d Document, expectedVersion int64) error {
	tag, err := s.tx.Exec(ctx, `UPDATE documents SET status=$3, paid_amount=$4, sub_total=$5, discount_total=$6, net_total=$7,
vat_total=$8, grand_total=$9, cost_total=$10, total_profit=$11, journal_entry_id=$12, cogs_journal_entry_id=$13, posted_at=$14,
posted_by=NULLIF($15,''), cancelled_at=$16, cancelled_by=NULLIF($17,''), version=$18, updated_at=$19, updated_by=NULLIF($20,''),
is_deleted=$21, deleted_at=$22, deleted_by=NULLIF($23,''), converted_to_id=$24
WHERE id=$1 AND version=$2`,
		d.ID, expectedVersion, d.Status, d.PaidAmount, d.SubTotal, d.DiscountTotal, d.NetTotal, d.VatTotal, d.GrandTotal, d.CostTotal,
		d.TotalProfit, d.JournalEntryID, d.CogsJournalEntryID, d.PostedAt, d.PostedBy, d.CancelledAt, d.CancelledBy, d.Version,
		d.UpdatedAt, d.UpdatedBy, d.IsDeleted, d.DeletedAt, d.DeletedBy, d.ConvertedToID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrencyConflict
	}
	for _, l := range d.Lines {
		if _, err := s.tx.Exec(ctx, `UPDATE document_lines SET base_quantity=$2, sub_total=$3, discount_amount=$4, net_total=$5,
vat_amount=$6, total_with_vat=$7, cost_total=$8, total_profit=$9, profit_margin_percent=$10, conversion_factor=$11,
cost_price=$12, system_quantity=$13, unit_price=$14, discount_percent=$15, vat_rate=$16 WHERE id=$1`,
			l.ID, l.Calc.BaseQuantity, l.Calc.SubTotal, l.Calc.DiscountAmount, l.Calc.NetTotal, l.Calc.VatAmount,
			l.Calc.TotalWithVat, l.Calc.CostTotal, l.Calc.TotalProfit, l.Calc.ProfitMarginPercent, l.ConversionFactor,
			l.CostPrice, l.SystemQuantity, l.UnitPrice, l.DiscountPercent, l.VatRate); err != nil {
			return err
		}
	}
	return nil
}

func (s *txStore) NextNumber(ctx context.Context, family Family, period string) (int64, error) {
	var next int64
	err := s.tx.QueryRow(ctx, `INSERT INTO document_sequences (family, period, last_number) VALUES ($1, $2, 1)
ON CONFLICT (family, period) DO UPDATE SET last_number = document_sequences.last_number + 1
RETURNING last_number`, family, period).Scan(&next)
	return next, err
}

func (s *txStore) PeekNumber(ctx context.Context, family Family, period string) (int64, error) {
	var last int64
	err := s.tx.QueryRow(ctx, `SELECT COALESCE((SELECT last_number FROM document_sequences WHERE family=$1 AND period=$2), 0)`,
		family, period).Scan(&last)
	return last, err
}

func (s *txStore) ReturnsOf(ctx context.Context, invoiceID int64) ([]Document, error) {
	rows, err := s.tx.Query(ctx, `SELECT id FROM documents WHERE original_invoice_id=$1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(ids))
	for _, id := range ids {
		d, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Cashbox locks the cashbox row so balance checks of concurrent payments serialise.
func (s *txStore) Cashbox(ctx context.Context, id int64) (Cashbox, error) {
	var c Cashbox
	err := s.tx.QueryRow(ctx, `SELECT id, code, name, account_id, is_active FROM cashboxes WHERE id=$1 FOR UPDATE`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.AccountID, &c.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Cashbox{}, fmt.Errorf("%w: %d", ErrCashboxNotFound, id)
		}
		return Cashbox{}, err
	}
	return c, nil
}
