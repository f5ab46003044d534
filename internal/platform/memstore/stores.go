package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/fiscal"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/inventory"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/posting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

type ledgerStore struct{ st *state }

func (s ledgerStore) NextSequence(_ context.Context, fiscalYearID int64) (int64, error) {
	s.st.journalSeqs[fiscalYearID]++
	return s.st.journalSeqs[fiscalYearID], nil
}

func (s ledgerStore) PeekSequence(_ context.Context, fiscalYearID int64) (int64, error) {
	return s.st.journalSeqs[fiscalYearID], nil
}

func (s ledgerStore) AccountByID(_ context.Context, id int64) (accounting.Account, error) {
	a, ok := s.st.accounts[id]
	if !ok {
		return accounting.Account{}, fmt.Errorf("%w: %d", accounting.ErrAccountNotFound, id)
	}
	return a, nil
}

func (s ledgerStore) AccountByCode(_ context.Context, code string) (accounting.Account, error) {
	for _, a := range s.st.accounts {
		if a.Code == code && !a.IsDeleted {
			return a, nil
		}
	}
	return accounting.Account{}, fmt.Errorf("%w: code %s", accounting.ErrAccountNotFound, code)
}

func (s ledgerStore) HasChildren(_ context.Context, id int64) (bool, error) {
	for _, a := range s.st.accounts {
		if a.ParentID != nil && *a.ParentID == id && !a.IsDeleted {
			return true, nil
		}
	}
	return false, nil
}

func (s ledgerStore) MarkAccountUsed(_ context.Context, id int64) error {
	a, ok := s.st.accounts[id]
	if !ok {
		return accounting.ErrAccountNotFound
	}
	a.HasPostings = true
	s.st.accounts[id] = a
	return nil
}

func (s ledgerStore) ListAccounts(_ context.Context) ([]accounting.Account, error) {
	out := make([]accounting.Account, 0, len(s.st.accounts))
	for _, a := range s.st.accounts {
		if !a.IsDeleted {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s ledgerStore) InsertJournal(_ context.Context, e *accounting.JournalEntry) error {
	if e.Number != "" {
		for _, other := range s.st.journals {
			if other.Number == e.Number {
				return fmt.Errorf("%w: %s", accounting.ErrDuplicateNumber, e.Number)
			}
		}
	}
	e.ID = s.st.id()
	for i := range e.Lines {
		e.Lines[i].ID = s.st.id()
		e.Lines[i].JournalID = e.ID
	}
	s.st.journals[e.ID] = cloneJournal(*e)
	return nil
}

func (s ledgerStore) UpdateJournal(_ context.Context, e accounting.JournalEntry, expectedVersion int64) error {
	stored, ok := s.st.journals[e.ID]
	if !ok {
		return accounting.ErrJournalNotFound
	}
	if stored.Version != expectedVersion {
		return shared.ErrConcurrencyConflict
	}
	stored.Status = e.Status
	stored.ReversedByID = e.ReversedByID
	stored.Version = e.Version
	stored.UpdatedAt = e.UpdatedAt
	stored.UpdatedBy = e.UpdatedBy
	stored.SoftDelete = e.SoftDelete
	s.st.journals[e.ID] = stored
	return nil
}

func (s ledgerStore) JournalByID(_ context.Context, id int64) (accounting.JournalEntry, error) {
	e, ok := s.st.journals[id]
	if !ok {
		return accounting.JournalEntry{}, fmt.Errorf("%w: %d", accounting.ErrJournalNotFound, id)
	}
	return cloneJournal(e), nil
}

func (s ledgerStore) JournalForUpdate(ctx context.Context, id int64) (accounting.JournalEntry, error) {
	return s.JournalByID(ctx, id)
}

func counts(e accounting.JournalEntry) bool {
	return e.Status == accounting.JournalStatusPosted || e.Status == accounting.JournalStatusReversed
}

func (s ledgerStore) AccountBalance(_ context.Context, accountID int64) (decimal.Decimal, error) {
	balance := decimal.Zero
	for _, e := range s.st.journals {
		if !counts(e) {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID == accountID {
				balance = balance.Add(l.Debit).Sub(l.Credit)
			}
		}
	}
	return balance, nil
}

func (s ledgerStore) YearAccountTotals(_ context.Context, fiscalYearID int64) ([]accounting.AccountTotal, error) {
	byAccount := make(map[int64]*accounting.AccountTotal)
	for _, e := range s.st.journals {
		if e.FiscalYearID != fiscalYearID || !counts(e) {
			continue
		}
		for _, l := range e.Lines {
			t, ok := byAccount[l.AccountID]
			if !ok {
				a := s.st.accounts[l.AccountID]
				t = &accounting.AccountTotal{AccountID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type}
				byAccount[l.AccountID] = t
			}
			t.Debit = t.Debit.Add(l.Debit)
			t.Credit = t.Credit.Add(l.Credit)
		}
	}
	out := make([]accounting.AccountTotal, 0, len(byAccount))
	for _, t := range byAccount {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s ledgerStore) HasPostedEntry(_ context.Context, periodID int64, source accounting.SourceType) (bool, error) {
	for _, e := range s.st.journals {
		if e.PeriodID == periodID && e.SourceType == source && e.Status == accounting.JournalStatusPosted &&
			e.ReversalOfID == nil && e.ReversedByID == nil {
			return true, nil
		}
	}
	return false, nil
}

type calendarStore struct{ st *state }

func (s calendarStore) ActiveYear(_ context.Context) (fiscal.Year, error) {
	for _, y := range s.st.years {
		if y.IsActive() {
			return cloneYear(y), nil
		}
	}
	return fiscal.Year{}, fiscal.ErrNoActiveYear
}

func (s calendarStore) YearByID(_ context.Context, id int64) (fiscal.Year, error) {
	y, ok := s.st.years[id]
	if !ok {
		return fiscal.Year{}, fmt.Errorf("%w: %d", fiscal.ErrYearNotFound, id)
	}
	return cloneYear(y), nil
}

func (s calendarStore) YearForUpdate(ctx context.Context, id int64) (fiscal.Year, error) {
	return s.YearByID(ctx, id)
}

func (s calendarStore) YearExists(_ context.Context, year int) (bool, error) {
	for _, y := range s.st.years {
		if y.Year == year {
			return true, nil
		}
	}
	return false, nil
}

func (s calendarStore) PeriodByID(_ context.Context, id int64) (fiscal.Period, error) {
	for _, y := range s.st.years {
		for _, p := range y.Periods {
			if p.ID == id {
				return p, nil
			}
		}
	}
	return fiscal.Period{}, fmt.Errorf("%w: %d", fiscal.ErrPeriodNotFound, id)
}

func (s calendarStore) InsertYear(_ context.Context, y *fiscal.Year) error {
	y.ID = s.st.id()
	for i := range y.Periods {
		y.Periods[i].ID = s.st.id()
		y.Periods[i].FiscalYearID = y.ID
	}
	s.st.years[y.ID] = cloneYear(*y)
	return nil
}

func (s calendarStore) UpdateYear(_ context.Context, y fiscal.Year) error {
	stored, ok := s.st.years[y.ID]
	if !ok {
		return fiscal.ErrYearNotFound
	}
	y.Periods = stored.Periods
	s.st.years[y.ID] = y
	return nil
}

func (s calendarStore) UpdatePeriod(_ context.Context, p fiscal.Period) error {
	y, ok := s.st.years[p.FiscalYearID]
	if !ok {
		return fiscal.ErrPeriodNotFound
	}
	for i := range y.Periods {
		if y.Periods[i].ID == p.ID {
			y.Periods[i] = p
			return nil
		}
	}
	return fiscal.ErrPeriodNotFound
}

func (s calendarStore) CountDrafts(_ context.Context, from, to time.Time) (int, error) {
	n := 0
	for _, d := range s.st.documents {
		if d.Status == posting.StatusDraft && !d.IsDeleted && !d.Family.IsQuotation() &&
			!d.Date.Before(from) && d.Date.Before(to.AddDate(0, 0, 1)) {
			n++
		}
	}
	return n, nil
}

type stockStore struct{ st *state }

func (s stockStore) Product(_ context.Context, id int64) (inventory.Product, error) {
	p, ok := s.st.products[id]
	if !ok {
		return inventory.Product{}, fmt.Errorf("%w: %d", inventory.ErrProductNotFound, id)
	}
	return cloneProduct(p), nil
}

func (s stockStore) ProductForUpdate(ctx context.Context, id int64) (inventory.Product, error) {
	return s.Product(ctx, id)
}

func (s stockStore) UpdateProductCost(_ context.Context, p inventory.Product) error {
	stored, ok := s.st.products[p.ID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	if stored.Version != p.Version {
		return shared.ErrConcurrencyConflict
	}
	stored.CostPrice = p.CostPrice
	stored.WeightedAverageCost = p.WeightedAverageCost
	stored.Version++
	s.st.products[p.ID] = stored
	return nil
}

func (s stockStore) WarehouseProductForUpdate(_ context.Context, warehouseID, productID int64) (inventory.WarehouseProduct, error) {
	wp, ok := s.st.stock[stockKey{warehouseID, productID}]
	if !ok {
		return inventory.WarehouseProduct{WarehouseID: warehouseID, ProductID: productID}, inventory.ErrBalanceNotFound
	}
	return wp, nil
}

func (s stockStore) UpsertWarehouseProduct(_ context.Context, wp inventory.WarehouseProduct) error {
	s.st.stock[stockKey{wp.WarehouseID, wp.ProductID}] = wp
	return nil
}

func (s stockStore) TotalStock(_ context.Context, productID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for k, wp := range s.st.stock {
		if k.productID == productID {
			total = total.Add(wp.Quantity)
		}
	}
	return total, nil
}

func (s stockStore) InsertMovement(_ context.Context, m *inventory.Movement) error {
	m.ID = s.st.id()
	s.st.movements = append(s.st.movements, *m)
	return nil
}

func (s stockStore) MovementsBySource(_ context.Context, sourceType string, sourceID int64) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, m := range s.st.movements {
		if m.Source.Type == sourceType && m.Source.ID == sourceID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s stockStore) StockCard(_ context.Context, warehouseID, productID int64) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, m := range s.st.movements {
		if m.WarehouseID == warehouseID && m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out, nil
}

type documentStore struct{ st *state }

func (s documentStore) Get(_ context.Context, id int64) (posting.Document, error) {
	d, ok := s.st.documents[id]
	if !ok {
		return posting.Document{}, fmt.Errorf("%w: %d", posting.ErrDocumentNotFound, id)
	}
	return cloneDocument(d), nil
}

func (s documentStore) GetForUpdate(ctx context.Context, id int64) (posting.Document, error) {
	return s.Get(ctx, id)
}

func (s documentStore) Insert(_ context.Context, d *posting.Document) error {
	for _, other := range s.st.documents {
		if other.Number == d.Number {
			return fmt.Errorf("%w: %s", posting.ErrDuplicateNumber, d.Number)
		}
	}
	d.ID = s.st.id()
	for i := range d.Lines {
		d.Lines[i].ID = s.st.id()
		d.Lines[i].DocumentID = d.ID
	}
	s.st.documents[d.ID] = cloneDocument(*d)
	return nil
}

func (s documentStore) Update(_ context.Context, d posting.Document, expectedVersion int64) error {
	stored, ok := s.st.documents[d.ID]
	if !ok {
		return posting.ErrDocumentNotFound
	}
	if stored.Version != expectedVersion {
		return shared.ErrConcurrencyConflict
	}
	s.st.documents[d.ID] = cloneDocument(d)
	return nil
}

func (s documentStore) NextNumber(_ context.Context, family posting.Family, period string) (int64, error) {
	k := seqKey{family, period}
	s.st.docSeqs[k]++
	return s.st.docSeqs[k], nil
}

func (s documentStore) PeekNumber(_ context.Context, family posting.Family, period string) (int64, error) {
	return s.st.docSeqs[seqKey{family, period}], nil
}

func (s documentStore) ReturnsOf(_ context.Context, invoiceID int64) ([]posting.Document, error) {
	var out []posting.Document
	for _, d := range s.st.documents {
		if d.OriginalInvoiceID != nil && *d.OriginalInvoiceID == invoiceID {
			out = append(out, cloneDocument(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type cashboxStore struct{ st *state }

func (s cashboxStore) Cashbox(_ context.Context, id int64) (posting.Cashbox, error) {
	c, ok := s.st.cashboxes[id]
	if !ok {
		return posting.Cashbox{}, fmt.Errorf("%w: %d", posting.ErrCashboxNotFound, id)
	}
	return c, nil
}
