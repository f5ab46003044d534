package posting

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/inventory"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

func dr(accountID int64, amount decimal.Decimal, desc string, warehouseID *int64) accounting.JournalLine {
	return accounting.JournalLine{AccountID: accountID, Debit: amount, Credit: decimal.Zero, Description: desc, DimWarehouseID: warehouseID}
}

func cr(accountID int64, amount decimal.Decimal, desc string, warehouseID *int64) accounting.JournalLine {
	return accounting.JournalLine{AccountID: accountID, Debit: decimal.Zero, Credit: amount, Description: desc, DimWarehouseID: warehouseID}
}

func describe(format string, doc Document) string {
	desc := fmt.Sprintf(format, doc.Number)
	if doc.Description != "" {
		desc += ": " + doc.Description
	}
	return desc
}

func warehouseDim(doc Document) *int64 {
	if doc.WarehouseID == 0 {
		return nil
	}
	id := doc.WarehouseID
	return &id
}

func hookErr(err error) error {
	var tagged *shared.Error
	if errors.As(err, &tagged) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrHookRejected, err)
}

func requireParty(doc *Document) error {
	if doc.PartyID == nil || *doc.PartyID == 0 {
		return ErrPartyRequired
	}
	return nil
}

type stockFunc func(ctx context.Context, store inventory.Store, src inventory.Source, in inventory.LineInput, actor string, events *shared.EventLog) (inventory.Movement, error)

// moveStock applies move to every line and returns the summed movement cost
// with the movements indexed like doc.Lines.
func (p *pipeline) moveStock(ctx context.Context, tx Tx, doc *Document, move stockFunc, costed bool, actor string, events *shared.EventLog) (decimal.Decimal, []inventory.Movement, error) {
	if p.inventoryHook != nil {
		if err := p.inventoryHook.BeforePost(ctx, *doc); err != nil {
			return decimal.Zero, nil, hookErr(err)
		}
	}
	src := stockSource(*doc)
	total := decimal.Zero
	byLine := make([]inventory.Movement, len(doc.Lines))
	moved := make([]inventory.Movement, 0, len(doc.Lines))
	for _, i := range stockOrder(*doc) {
		line := doc.Lines[i]
		in := inventory.LineInput{WarehouseID: line.Warehouse(*doc), ProductID: line.ProductID, BaseQuantity: line.Calc.BaseQuantity}
		if costed {
			in.UnitCost = line.UnitCost()
		}
		m, err := move(ctx, tx.Stock(), src, in, actor, events)
		if err != nil {
			return decimal.Zero, nil, fmt.Errorf("line %d: %w", line.LineNumber, err)
		}
		total = total.Add(m.TotalCost)
		byLine[i] = m
		if !m.Quantity.IsZero() {
			moved = append(moved, m)
		}
	}
	if p.inventoryHook != nil {
		if err := p.inventoryHook.AfterPost(ctx, *doc, moved); err != nil {
			return decimal.Zero, nil, hookErr(err)
		}
	}
	return total, byLine, nil
}

// checkReturnable holds a return to what is left of its original invoice:
// the invoiced base quantity per product less every other posted return.
func (p *pipeline) checkReturnable(ctx context.Context, tx Tx, doc *Document) error {
	if doc.OriginalInvoiceID == nil {
		return nil
	}
	invoice, err := tx.Documents().GetForUpdate(ctx, *doc.OriginalInvoiceID)
	if err != nil {
		return err
	}
	switch {
	case invoice.IsDeleted, invoice.Family != doc.Family.ReturnOf(), invoice.Status != StatusPosted:
		return fmt.Errorf("%w: %s is a %s %s", ErrInvalidOriginal, invoice.Number, invoice.Status, invoice.Family)
	case invoice.PartyID == nil || doc.PartyID == nil || *invoice.PartyID != *doc.PartyID:
		return fmt.Errorf("%w: %s belongs to another party", ErrInvalidOriginal, invoice.Number)
	}
	left := make(map[int64]decimal.Decimal)
	for _, l := range invoice.Lines {
		left[l.ProductID] = left[l.ProductID].Add(l.Calc.BaseQuantity)
	}
	earlier, err := tx.Documents().ReturnsOf(ctx, invoice.ID)
	if err != nil {
		return err
	}
	for _, r := range earlier {
		if r.ID == doc.ID || r.Family != doc.Family || r.Status != StatusPosted || r.IsDeleted {
			continue
		}
		for _, l := range r.Lines {
			left[l.ProductID] = left[l.ProductID].Sub(l.Calc.BaseQuantity)
		}
	}
	for _, l := range doc.Lines {
		remaining, ok := left[l.ProductID]
		if !ok {
			return fmt.Errorf("%w: line %d product %d is not on %s", ErrOverReturn, l.LineNumber, l.ProductID, invoice.Number)
		}
		if l.Calc.BaseQuantity.GreaterThan(remaining) {
			return fmt.Errorf("%w: line %d returns %s, %s left on %s", ErrOverReturn, l.LineNumber, l.Calc.BaseQuantity, remaining, invoice.Number)
		}
		left[l.ProductID] = remaining.Sub(l.Calc.BaseQuantity)
	}
	return nil
}

func (p *pipeline) cashbox(ctx context.Context, tx Tx, id *int64) (Cashbox, error) {
	if id == nil || *id == 0 {
		return Cashbox{}, ErrCashboxRequired
	}
	box, err := tx.Cashboxes().Cashbox(ctx, *id)
	if err != nil {
		return Cashbox{}, err
	}
	if !box.IsActive {
		return Cashbox{}, fmt.Errorf("%w: %s", ErrCashboxInactive, box.Code)
	}
	return box, nil
}

func (p *pipeline) ensureFunds(ctx context.Context, tx Tx, box Cashbox, amount decimal.Decimal) error {
	balance, err := tx.Ledger().AccountBalance(ctx, box.AccountID)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientCash, box.Code, shared.FormatAmount(balance), shared.FormatAmount(amount))
	}
	return nil
}

// contra resolves the counter account of a cash document.
func (p *pipeline) contra(ctx context.Context, tx Tx, doc Document, fallback string) (int64, error) {
	if doc.ContraAccountID != nil && *doc.ContraAccountID != 0 {
		return *doc.ContraAccountID, nil
	}
	return p.accountID(ctx, tx, fallback)
}

type purchaseInvoice struct{ p *pipeline }

func (a purchaseInvoice) check(_ context.Context, _ Tx, doc *Document) error {
	return requireParty(doc)
}

func (a purchaseInvoice) post(ctx context.Context, tx Tx, doc *Document, actor string, events *shared.EventLog) error {
	codes := a.p.codes
	inv, err := a.p.accountID(ctx, tx, codes.Inventory)
	if err != nil {
		return err
	}
	vat, err := a.p.accountID(ctx, tx, codes.VatInput)
	if err != nil {
		return err
	}
	ap, err := a.p.accountID(ctx, tx, codes.Payable)
	if err != nil {
		return err
	}
	if _, _, err := a.p.moveStock(ctx, tx, doc, a.p.stock.Receive, true, actor, events); err != nil {
		return err
	}
	entry, err := a.p.journal(ctx, tx, *doc, describe("Purchase invoice %s", *doc), []accounting.JournalLine{
		dr(inv, doc.NetTotal, "Inventory", warehouseDim(*doc)),
		dr(vat, doc.VatTotal, "VAT input", nil),
		cr(ap, doc.GrandTotal, "Accounts payable", nil),
	}, actor, events)
	if err != nil {
		return err
	}
	doc.JournalEntryID = &entry.ID
	return nil
}

type salesInvoice struct{ p *pipeline }

func (a salesInvoice) check(_ context.Context, _ Tx, doc *Document) error {
	return requireParty(doc)
}

func (a salesInvoice) post(ctx context.Context, tx Tx, doc *Document, actor string, events *shared.EventLog) error {
	codes := a.p.codes
	ar, err := a.p.accountID(ctx, tx, codes.Receivable)
	if err != nil {
		return err
	}
	sales, err := a.p.accountID(ctx, tx, codes.Sales)
	if err != nil {
		return err
	}
	vat, err := a.p.accountID(ctx, tx, codes.VatOutput)
	if err != nil {
		return err
	}
	cogs, _, err := a.p.moveStock(ctx, tx, doc, a.p.stock.Issue, false, actor, events)
	if err != nil {
		return err
	}
	entry, err := a.p.journal(ctx, tx, *doc, describe("Sales invoice %s", *doc), []accounting.JournalLine{
		dr(ar, doc.GrandTotal, "Accounts receivable", nil),
		cr(sales, doc.NetTotal, "Sales", nil),
		cr(vat, doc.VatTotal, "VAT output", nil),
	}, actor, events)
	if err != nil {
		return err
	}
	doc.JournalEntryID = &entry.ID
	if !cogs.IsPositive() {
		return nil
	}
	costID, err := a.p.accountID(ctx, tx, codes.COGS)
	if err != nil {
		return err
	}
	inv, err := a.p.accountID(ctx, tx, codes.Inventory)
	if err != nil {
		return err
	}
	costEntry, err := a.p.journal(ctx, tx, *doc, describe("Cost of goods sold %s", *doc), []accounting.JournalLine{
		dr(costID, cogs, "Cost of goods sold", nil),
		cr(inv, cogs, "Inventory", warehouseDim(*doc)),
	}, actor, events)
	if err != nil {
		return err
	}
	doc.CogsJournalEntryID = &costEntry.ID
	return nil
}

type purchaseReturn struct{ p *pipeline }

func (a purchaseReturn) check(ctx context.Context, tx Tx, doc *Document) error {
	if err := requireParty(doc); err != nil {
		return err
	}
	return a.p.checkReturnable(ctx, tx, doc)
}

func (a purchaseReturn) post(ctx context.Context, tx Tx, doc *Document, actor string, events *shared.EventLog) error {
	codes := a.p.codes
	ap, err := a.p.accountID(ctx, tx, codes.Payable)
	if err != nil {
		return err
	}
	inv, err := a.p.accountID(ctx, tx, codes.Inventory)
	if err != nil {
		return err
	}
	vat, err := a.p.accountID(ctx, tx, codes.VatInput)
	if err != nil {
		return err
	}
	if _, _, err := a.p.moveStock(ctx, tx, doc, a.p.stock.ReturnToSupplier, true, actor, events); err != nil {
		return err
	}
	entry, err := a.p.journal(ctx, tx, *doc, describe("Purchase return %s", *doc), []accounting.JournalLine{
		dr(ap, doc.GrandTotal, "Accounts payable", nil),
		cr(inv, doc.NetTotal, "Inventory", warehouseDim(*doc)),
		cr(vat, doc.VatTotal, "VAT input", nil),
	}, actor, events)
	if err != nil {
		return err
	}
	doc.JournalEntryID = &entry.ID
	return nil
}

type salesReturn struct{ p *pipeline }

func (a salesReturn) check(ctx context.Context, tx Tx, doc *Document) error {
	if err := requireParty(doc); err != nil {
		return err
	}
	return a.p.checkReturnable(ctx, tx, doc)
}

func (a salesReturn) post(ctx context.Context, tx Tx, doc *Document, actor string, events *shared.EventLog) error {
	codes := a.p.codes
	sales, err := a.p.accountID(ctx, tx, codes.Sales)
	if err != nil {
		return err
	}
	vat, err := a.p.accountID(ctx, tx, codes.VatOutput)
	if err != nil {
		return err
	}
	ar, err := a.p.accountID(ctx, tx, codes.Receivable)
	if err != nil {
		return err
	}
	restocked, _, err := a.p.moveStock(ctx, tx, doc, a.p.stock.Restock, false, actor, events)
	if err != nil {
		return err
	}
	entry, err := a.p.journal(ctx, tx, *doc, describe("Sales return %s", *doc), []accounting.JournalLine{
		dr(sales, doc.NetTotal, "Sales", nil),
		dr(vat, doc.VatTotal, "VAT output", nil),
		cr(ar, doc.GrandTotal, "Accounts receivable", nil),
	}, actor, events)
	if err != nil {
		return err
	}
	doc.JournalEntryID = &entry.ID
	if !restocked.IsPositive() {
		return nil
	}
	inv, err := a.p.accountID(ctx, tx, codes.Inventory)
	if err != nil {
		return err
	}
	costID, err := a.p.accountID(ctx, tx, codes.COGS)
	if err != nil {
		return err
	}
	costEntry, err := a.p.journal(ctx, tx, *doc, describe("Cost of goods returned %s", *doc), []accounting.JournalLine{
		dr(inv, restocked, "Inventory", warehouseDim(*doc)),
		cr(costID, restocked, "Cost of goods sold", nil),
	}, actor, events)
	if err != nil {
		return err
	}
	doc.CogsJournalEntryID = &costEntry.ID
	return nil
}

type inventoryAdjustment struct{ p *pipeline }

func (a inventoryAdjustment) check(_ context.Context, _ Tx, doc *Document) error {
	for _, l := range doc.Lines {
		if l.Warehouse(*doc) == 0 {
			return fmt.Errorf("%w: line %d has no warehouse", ErrInvalidLine, l.LineNumber)
		}
	}
	return nil
}

// post books each line's count difference at the average cost: surpluses
// into inventory against adjustment income, shortages out of inventory
// into adjustment expense.
func (a inventoryAdjustment) post(ctx context.Context, tx Tx, doc *Document, actor string, events *shared.EventLog) error {
	codes := a.p.codes
	inv, err := a.p.accountID(ctx, tx, codes.Inventory)
	if err != nil {
		return err
	}
	income, err := a.p.accountID(ctx, tx, codes.AdjustmentIncome)
	if err != nil {
		return err
	}
	expense, err := a.p.accountID(ctx, tx, codes.AdjustmentExpense)
	if err != nil {
		return err
	}
	_, moved, err := a.p.moveStock(ctx, tx, doc, a.p.stock.Count, false, actor, events)
	if err != nil {
		return err
	}
	surplus, shortage := decimal.Zero, decimal.Zero
	changed := false
	for i, m := range moved {
		doc.Lines[i].SystemQuantity = m.BalanceAfter.Sub(m.Quantity)
		switch {
		case m.Quantity.IsPositive():
			surplus = surplus.Add(m.TotalCost)
		case m.Quantity.IsNegative():
			shortage = shortage.Add(m.TotalCost)
		}
		changed = changed || !m.Quantity.IsZero()
	}
	if !changed {
		return fmt.Errorf("%w: %s", ErrNothingToAdjust, doc.Number)
	}
	if surplus.IsZero() && shortage.IsZero() {
		// products without a cost yet move stock but no value
		return nil
	}
	entry, err := a.p.journal(ctx, tx, *doc, describe("Inventory adjustment %s", *doc), []accounting.JournalLine{
		dr(inv, surplus, "Inventory surplus", warehouseDim(*doc)),
		cr(income, surplus, "Inventory adjustment income", nil),
		dr(expense, shortage, "Inventory adjustment expense", nil),
		cr(inv, shortage, "Inventory shortage", warehouseDim(*doc)),
	}, actor, events)
	if err != nil {
		return err
	}
	doc.JournalEntryID = &entry.ID
	return nil
}

type cashReceipt struct{ p *pipeline }

func (a cashReceipt) check(ctx context.Context, tx Tx, doc *Document) error {
	_, err := a.p.cashbox(ctx, tx, doc.CashboxID)
	return err
}

func (a cashReceipt) post(ctx context.Context, tx Tx, doc *Document, actor string, events *shared.EventLog) error {
	box, err := a.p.cashbox(ctx, tx, doc.CashboxID)
	if err != nil {
		return err
	}
	contra, err := a.p.contra(ctx, tx, *doc, a.p.codes.Receivable)
	if err != nil {
		return err
	}
	if doc.SettlesDocumentID != nil {
		if err := a.p.settle(ctx, tx, *doc, doc.Amount, actor); err != nil {
			return err
		}
	}
	entry, err := a.p.journal(ctx, tx, *doc, describe("Cash receipt %s", *doc), []accounting.JournalLine{
		dr(box.AccountID, doc.Amount, box.Name, nil),
		cr(contra, doc.Amount, "Receipt", nil),
	}, actor, events)
	if err != nil {
		return err
	}
	doc.JournalEntryID = &entry.ID
	return nil
}

type cashPayment struct{ p *pipeline }

func (a cashPayment) check(ctx context.Context, tx Tx, doc *Document) error {
	box, err := a.p.cashbox(ctx, tx, doc.CashboxID)
	if err != nil {
		return err
	}
	return a.p.ensureFunds(ctx, tx, box, doc.Amount)
}

func (a cashPayment) post(ctx context.Context, tx Tx, doc *Document, actor string, events *shared.EventLog) error {
	box, err := a.p.cashbox(ctx, tx, doc.CashboxID)
	if err != nil {
		return err
	}
	contra, err := a.p.contra(ctx, tx, *doc, a.p.codes.Payable)
	if err != nil {
		return err
	}
	if doc.SettlesDocumentID != nil {
		if err := a.p.settle(ctx, tx, *doc, doc.Amount, actor); err != nil {
			return err
		}
	}
	entry, err := a.p.journal(ctx, tx, *doc, describe("Cash payment %s", *doc), []accounting.JournalLine{
		dr(contra, doc.Amount, "Payment", nil),
		cr(box.AccountID, doc.Amount, box.Name, nil),
	}, actor, events)
	if err != nil {
		return err
	}
	doc.JournalEntryID = &entry.ID
	return nil
}

type cashTransfer struct{ p *pipeline }

func (a cashTransfer) boxes(ctx context.Context, tx Tx, doc *Document) (Cashbox, Cashbox, error) {
	source, err := a.p.cashbox(ctx, tx, doc.CashboxID)
	if err != nil {
		return Cashbox{}, Cashbox{}, err
	}
	target, err := a.p.cashbox(ctx, tx, doc.TargetCashboxID)
	if err != nil {
		return Cashbox{}, Cashbox{}, err
	}
	if source.ID == target.ID {
		return Cashbox{}, Cashbox{}, ErrSameCashbox
	}
	return source, target, nil
}

func (a cashTransfer) check(ctx context.Context, tx Tx, doc *Document) error {
	source, _, err := a.boxes(ctx, tx, doc)
	if err != nil {
		return err
	}
	return a.p.ensureFunds(ctx, tx, source, doc.Amount)
}

func (a cashTransfer) post(ctx context.Context, tx Tx, doc *Document, actor string, events *shared.EventLog) error {
	source, target, err := a.boxes(ctx, tx, doc)
	if err != nil {
		return err
	}
	entry, err := a.p.journal(ctx, tx, *doc, describe("Cash transfer %s", *doc), []accounting.JournalLine{
		dr(target.AccountID, doc.Amount, target.Name, nil),
		cr(source.AccountID, doc.Amount, source.Name, nil),
	}, actor, events)
	if err != nil {
		return err
	}
	doc.JournalEntryID = &entry.ID
	return nil
}

type manualJournal struct{ p *pipeline }

func (a manualJournal) check(_ context.Context, _ Tx, doc *Document) error {
	if doc.SettlesDocumentID != nil {
		return fmt.Errorf("%w: manual journals cannot settle invoices", ErrInvalidSettlement)
	}
	return nil
}

func (a manualJournal) post(ctx context.Context, tx Tx, doc *Document, actor string, events *shared.EventLog) error {
	desc := doc.Description
	if desc == "" {
		desc = "Manual journal " + doc.Number
	}
	lines := make([]accounting.JournalLine, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		if e.Debit.IsZero() && e.Credit.IsZero() {
			return accounting.ErrZeroLine
		}
		lines = append(lines, accounting.JournalLine{AccountID: e.AccountID, Debit: e.Debit, Credit: e.Credit, Description: e.Description})
	}
	entry, err := a.p.journal(ctx, tx, *doc, desc, lines, actor, events)
	if err != nil {
		return err
	}
	doc.JournalEntryID = &entry.ID
	return nil
}
