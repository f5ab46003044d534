package posting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// Orchestrator runs the document lifecycle of one family.
type Orchestrator struct {
	family Family
	p      *pipeline
	asm    assembler
}

// Family reports the family the orchestrator handles.
func (o *Orchestrator) Family() Family { return o.family }

// Post turns a draft into a posted document with its journal entries and
// stock movements, all in one transaction.
func (o *Orchestrator) Post(ctx context.Context, cmd Command) shared.Result[Document] {
	return o.p.run(ctx, o.family, "post", cmd, func(ctx context.Context, tx Tx, events *shared.EventLog) (Document, error) {
		return o.p.post(ctx, tx, o.family, o.asm, cmd, events)
	})
}

// Cancel reverses a posted document. Journal entries are mirrored and stock
// movements are reversed; the weighted average cost is left as is.
func (o *Orchestrator) Cancel(ctx context.Context, cmd Command) shared.Result[Document] {
	return o.p.run(ctx, o.family, "cancel", cmd, func(ctx context.Context, tx Tx, events *shared.EventLog) (Document, error) {
		return o.p.cancel(ctx, tx, o.family, cmd, events)
	})
}

// NextNumber previews the number the next draft of this month would receive.
func (o *Orchestrator) NextNumber(ctx context.Context) (string, error) {
	now := o.p.clock.Now()
	var number string
	err := o.p.uow.WithTx(ctx, shared.ReadCommitted, func(ctx context.Context, tx Tx) error {
		last, err := tx.Documents().PeekNumber(ctx, o.family, SequencePeriod(now))
		if err != nil {
			return err
		}
		number = FormatDocumentNumber(o.family, now, last+1)
		return nil
	})
	return number, err
}

// CreateDraft numbers doc, recomputes its lines and stores it as a draft at
// version 1.
func (o *Orchestrator) CreateDraft(ctx context.Context, doc Document, actor string) shared.Result[Document] {
	cmd := Command{Actor: actor}
	return o.p.run(ctx, o.family, "create", cmd, func(ctx context.Context, tx Tx, _ *shared.EventLog) (Document, error) {
		if strings.TrimSpace(actor) == "" {
			return Document{}, ErrActorRequired
		}
		if doc.Family != "" && doc.Family != o.family {
			return Document{}, fmt.Errorf("%w: got %s", ErrFamilyMismatch, doc.Family)
		}
		if err := validateDraft(o.family, doc); err != nil {
			return Document{}, err
		}
		return o.p.insertDraft(ctx, tx, o.family, doc, actor)
	})
}

// DeleteDraft soft-deletes a draft the caller last read at cmd.Version.
func (o *Orchestrator) DeleteDraft(ctx context.Context, cmd Command) shared.Result[Document] {
	return o.p.run(ctx, o.family, "delete", cmd, func(ctx context.Context, tx Tx, _ *shared.EventLog) (Document, error) {
		doc, err := o.p.lockDocument(ctx, tx, o.family, cmd)
		if err != nil {
			return Document{}, err
		}
		if doc.Status != StatusDraft {
			return Document{}, fmt.Errorf("%w: %s is %s", ErrNotDraft, doc.Number, doc.Status)
		}
		now := o.p.clock.Now()
		expected := doc.Version
		doc.MarkDeleted(cmd.Actor, now)
		doc.Touch(cmd.Actor, now)
		doc.Advance()
		if err := tx.Documents().Update(ctx, doc, expected); err != nil {
			return Document{}, err
		}
		return doc, nil
	})
}

// Get loads a document of this family.
func (o *Orchestrator) Get(ctx context.Context, id int64) (Document, error) {
	var doc Document
	err := o.p.uow.WithTx(ctx, shared.ReadCommitted, func(ctx context.Context, tx Tx) error {
		var err error
		doc, err = tx.Documents().Get(ctx, id)
		if err != nil {
			return err
		}
		if doc.Family != o.family || doc.IsDeleted {
			return fmt.Errorf("%w: %d", ErrDocumentNotFound, id)
		}
		return nil
	})
	return doc, err
}

// PurchaseInvoices posts supplier invoices into inventory and payables.
type PurchaseInvoices struct{ *Orchestrator }

// SalesInvoices posts customer invoices, issuing stock at the average cost.
type SalesInvoices struct{ *Orchestrator }

// PurchaseReturns posts goods returned to suppliers.
type PurchaseReturns struct{ *Orchestrator }

// SalesReturns posts goods returned by customers.
type SalesReturns struct{ *Orchestrator }

// CashReceipts posts money received into a cashbox.
type CashReceipts struct{ *Orchestrator }

// CashPayments posts money paid out of a cashbox.
type CashPayments struct{ *Orchestrator }

// CashTransfers posts money moved between cashboxes.
type CashTransfers struct{ *Orchestrator }

// ManualJournals posts free-form balanced journals.
type ManualJournals struct{ *Orchestrator }

// InventoryAdjustments posts stock counts against the books.
type InventoryAdjustments struct{ *Orchestrator }

// Registry holds one orchestrator per family sharing a single pipeline.
type Registry struct {
	PurchaseInvoices     PurchaseInvoices
	SalesInvoices        SalesInvoices
	PurchaseReturns      PurchaseReturns
	SalesReturns         SalesReturns
	CashReceipts         CashReceipts
	CashPayments         CashPayments
	CashTransfers        CashTransfers
	ManualJournals       ManualJournals
	InventoryAdjustments InventoryAdjustments
	PurchaseQuotations   PurchaseQuotations
	SalesQuotations      SalesQuotations
	YearEnd              *YearEnd

	byFamily map[Family]*Orchestrator
}

// NewRegistry wires every orchestrator to uow.
func NewRegistry(uow UnitOfWork, audit AuditPort, logger *slog.Logger, opts ...Option) *Registry {
	p := newPipeline(uow, audit, logger, opts...)
	mk := func(f Family, asm assembler) *Orchestrator {
		return &Orchestrator{family: f, p: p, asm: asm}
	}
	r := &Registry{
		PurchaseInvoices:     PurchaseInvoices{mk(FamilyPurchaseInvoice, purchaseInvoice{p})},
		SalesInvoices:        SalesInvoices{mk(FamilySalesInvoice, salesInvoice{p})},
		PurchaseReturns:      PurchaseReturns{mk(FamilyPurchaseReturn, purchaseReturn{p})},
		SalesReturns:         SalesReturns{mk(FamilySalesReturn, salesReturn{p})},
		CashReceipts:         CashReceipts{mk(FamilyCashReceipt, cashReceipt{p})},
		CashPayments:         CashPayments{mk(FamilyCashPayment, cashPayment{p})},
		CashTransfers:        CashTransfers{mk(FamilyCashTransfer, cashTransfer{p})},
		ManualJournals:       ManualJournals{mk(FamilyManualJournal, manualJournal{p})},
		InventoryAdjustments: InventoryAdjustments{mk(FamilyInventoryAdjustment, inventoryAdjustment{p})},
		PurchaseQuotations:   PurchaseQuotations{Quotations{mk(FamilyPurchaseQuotation, nil)}},
		SalesQuotations:      SalesQuotations{Quotations{mk(FamilySalesQuotation, nil)}},
		YearEnd:              &YearEnd{p: p},
	}
	r.byFamily = map[Family]*Orchestrator{
		FamilyPurchaseInvoice:     r.PurchaseInvoices.Orchestrator,
		FamilySalesInvoice:        r.SalesInvoices.Orchestrator,
		FamilyPurchaseReturn:      r.PurchaseReturns.Orchestrator,
		FamilySalesReturn:         r.SalesReturns.Orchestrator,
		FamilyCashReceipt:         r.CashReceipts.Orchestrator,
		FamilyCashPayment:         r.CashPayments.Orchestrator,
		FamilyCashTransfer:        r.CashTransfers.Orchestrator,
		FamilyManualJournal:       r.ManualJournals.Orchestrator,
		FamilyInventoryAdjustment: r.InventoryAdjustments.Orchestrator,
		FamilyPurchaseQuotation:   r.PurchaseQuotations.Orchestrator,
		FamilySalesQuotation:      r.SalesQuotations.Orchestrator,
	}
	return r
}

// For returns the orchestrator of family.
func (r *Registry) For(family Family) (*Orchestrator, error) {
	o, ok := r.byFamily[family]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFamily, family)
	}
	return o, nil
}

// Quotations returns the quotation workflow of family.
func (r *Registry) Quotations(family Family) (Quotations, error) {
	switch family {
	case FamilyPurchaseQuotation:
		return r.PurchaseQuotations.Quotations, nil
	case FamilySalesQuotation:
		return r.SalesQuotations.Quotations, nil
	}
	return Quotations{}, fmt.Errorf("%w: %q", ErrNotQuotation, family)
}
