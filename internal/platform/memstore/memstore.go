// Package memstore is an in-memory implementation of every store contract of
// the posting engine. Transactions run one at a time on a private copy of the
// state that replaces the committed state only when the callback succeeds.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/fiscal"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/inventory"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/posting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

type stockKey struct {
	warehouseID int64
	productID   int64
}

type seqKey struct {
	family posting.Family
	period string
}

type state struct {
	nextID      int64
	accounts    map[int64]accounting.Account
	journals    map[int64]accounting.JournalEntry
	journalSeqs map[int64]int64
	years       map[int64]fiscal.Year
	products    map[int64]inventory.Product
	stock       map[stockKey]inventory.WarehouseProduct
	movements   []inventory.Movement
	documents   map[int64]posting.Document
	docSeqs     map[seqKey]int64
	cashboxes   map[int64]posting.Cashbox
}

func newState() *state {
	return &state{
		accounts:    make(map[int64]accounting.Account),
		journals:    make(map[int64]accounting.JournalEntry),
		journalSeqs: make(map[int64]int64),
		years:       make(map[int64]fiscal.Year),
		products:    make(map[int64]inventory.Product),
		stock:       make(map[stockKey]inventory.WarehouseProduct),
		documents:   make(map[int64]posting.Document),
		docSeqs:     make(map[seqKey]int64),
		cashboxes:   make(map[int64]posting.Cashbox),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *state) clone() *state {
	c := newState()
	c.nextID = s.nextID
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.journals {
		c.journals[k] = cloneJournal(v)
	}
	for k, v := range s.journalSeqs {
		c.journalSeqs[k] = v
	}
	for k, v := range s.years {
		c.years[k] = cloneYear(v)
	}
	for k, v := range s.products {
		c.products[k] = cloneProduct(v)
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	c.movements = append([]inventory.Movement(nil), s.movements...)
	for k, v := range s.documents {
		c.documents[k] = cloneDocument(v)
	}
	for k, v := range s.docSeqs {
		c.docSeqs[k] = v
	}
	for k, v := range s.cashboxes {
		c.cashboxes[k] = v
	}
	return c
}

func cloneJournal(e accounting.JournalEntry) accounting.JournalEntry {
	e.Lines = append([]accounting.JournalLine(nil), e.Lines...)
	return e
}

func cloneYear(y fiscal.Year) fiscal.Year {
	y.Periods = append([]fiscal.Period(nil), y.Periods...)
	return y
}

func cloneProduct(p inventory.Product) inventory.Product {
	p.Units = append([]inventory.ProductUnit(nil), p.Units...)
	return p
}

func cloneDocument(d posting.Document) posting.Document {
	d.Lines = append([]posting.Line(nil), d.Lines...)
	d.Entries = append([]posting.Entry(nil), d.Entries...)
	return d
}

// Store holds the committed state. The zero value is not usable; call New.
type Store struct {
	mu    sync.Mutex
	state *state

	auditMu sync.Mutex
	audit   []shared.AuditLog
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// WithTx implements posting.UnitOfWork. The isolation level is accepted for
// interface compatibility; transactions are serialised.
func (s *Store) WithTx(ctx context.Context, _ shared.IsolationLevel, fn func(context.Context, posting.Tx) error) error {
	return s.update(ctx, func(st *state) error {
		return fn(ctx, &tx{st: st})
	})
}

func (s *Store) update(ctx context.Context, fn func(*state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Accounting adapts the store to accounting.RepositoryPort.
func (s *Store) Accounting() accounting.RepositoryPort { return accountingRepo{s} }

// Fiscal adapts the store to fiscal.RepositoryPort.
func (s *Store) Fiscal() fiscal.RepositoryPort { return fiscalRepo{s} }

// Inventory adapts the store to inventory.RepositoryPort.
func (s *Store) Inventory() inventory.RepositoryPort { return inventoryRepo{s} }

type accountingRepo struct{ s *Store }

func (r accountingRepo) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	return r.s.update(ctx, func(st *state) error { return fn(ctx, &tx{st: st}) })
}

type fiscalRepo struct{ s *Store }

func (r fiscalRepo) WithTx(ctx context.Context, fn func(context.Context, fiscal.Store) error) error {
	return r.s.update(ctx, func(st *state) error { return fn(ctx, calendarStore{st}) })
}

type inventoryRepo struct{ s *Store }

func (r inventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.s.update(ctx, func(st *state) error { return fn(ctx, &tx{st: st}) })
}

// Record implements the audit ports of every service.
func (s *Store) Record(_ context.Context, log shared.AuditLog) error {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.audit = append(s.audit, log)
	return nil
}

// AuditTrail returns a copy of every recorded audit entry.
func (s *Store) AuditTrail() []shared.AuditLog {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	return append([]shared.AuditLog(nil), s.audit...)
}

// Journals returns every stored journal entry ordered by id.
func (s *Store) Journals() []accounting.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]accounting.JournalEntry, 0, len(s.state.journals))
	for _, e := range s.state.journals {
		out = append(out, cloneJournal(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Movements returns the inventory movement log.
func (s *Store) Movements() []inventory.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inventory.Movement(nil), s.state.movements...)
}

// Document returns the committed copy of a document.
func (s *Store) Document(id int64) (posting.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.state.documents[id]
	return cloneDocument(d), ok
}

// Product returns the committed copy of a product.
func (s *Store) Product(id int64) (inventory.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.products[id]
	return cloneProduct(p), ok
}

// OnHand returns the committed quantity of a product in a warehouse.
func (s *Store) OnHand(warehouseID, productID int64) inventory.WarehouseProduct {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.stock[stockKey{warehouseID, productID}]
}

// tx exposes one working copy through every store interface.
type tx struct {
	st *state
}

func (t *tx) Documents() posting.DocumentStore { return documentStore{t.st} }
func (t *tx) Ledger() accounting.Store         { return ledgerStore{t.st} }
func (t *tx) Calendar() fiscal.Store           { return calendarStore{t.st} }
func (t *tx) Stock() inventory.Store           { return stockStore{t.st} }
func (t *tx) Cashboxes() posting.CashboxStore  { return cashboxStore{t.st} }
