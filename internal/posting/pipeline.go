package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/fiscal"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/inventory"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// assembler is the family-specific part of a posting: document checks, stock
// effects and journal layout.
type assembler interface {
	check(ctx context.Context, tx Tx, doc *Document) error
	post(ctx context.Context, tx Tx, doc *Document, actor string, events *shared.EventLog) error
}

type pipeline struct {
	uow           UnitOfWork
	audit         AuditPort
	logger        *slog.Logger
	guard         shared.ConcurrencyGuard
	clock         shared.Clock
	isolation     shared.IsolationLevel
	codes         AccountCodes
	vat           VATHook
	inventoryHook InventoryHook
	metrics       Metrics
	stockConfig   inventory.EngineConfig
	ledger        *accounting.Ledger
	stock         *inventory.Engine
}

func newPipeline(uow UnitOfWork, audit AuditPort, logger *slog.Logger, opts ...Option) *pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &pipeline{
		uow:    uow,
		audit:  audit,
		logger: logger,
		guard:  shared.VersionGuard{},
		clock:  shared.SystemClock,
		codes:  DefaultAccountCodes(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ledger = accounting.NewLedger(p.clock)
	p.stock = inventory.NewEngine(p.stockConfig, p.clock)
	return p
}

type txFunc func(ctx context.Context, tx Tx, events *shared.EventLog) (Document, error)

// transact runs fn in one transaction at the pipeline isolation and collects
// the events it raised. Events are dropped when the transaction fails.
func transact[T any](ctx context.Context, p *pipeline, fn func(context.Context, Tx, *shared.EventLog) (T, error)) shared.Result[T] {
	var (
		value  T
		events shared.EventLog
	)
	err := p.uow.WithTx(ctx, p.isolation, func(ctx context.Context, tx Tx) error {
		events.Reset()
		var err error
		value, err = fn(ctx, tx, &events)
		return err
	})
	if err != nil {
		return shared.Failure[T](err)
	}
	return shared.Success(value, events.Events())
}

// run executes fn through transact, then logs, measures and audits the outcome.
func (p *pipeline) run(ctx context.Context, family Family, op string, cmd Command, fn txFunc) shared.Result[Document] {
	started := time.Now()
	result := transact[Document](ctx, p, fn)
	p.finish(ctx, family, op, cmd, result.Value, result, time.Since(started))
	return result
}

func (p *pipeline) finish(ctx context.Context, family Family, op string, cmd Command, doc Document, result shared.Result[Document], elapsed time.Duration) {
	outcome := shared.OutcomeSuccess
	kind := "ok"
	if !result.OK() {
		outcome = shared.OutcomeFailure
		kind = string(result.Kind)
	}
	attrs := []any{
		slog.String("family", string(family)),
		slog.String("operation", op),
		slog.Int64("document_id", cmd.ID),
		slog.String("outcome", kind),
		slog.Duration("duration", elapsed),
	}
	if result.OK() {
		p.logger.InfoContext(ctx, "posting operation", append(attrs, slog.String("number", doc.Number))...)
	} else {
		p.logger.WarnContext(ctx, "posting operation failed", append(attrs, slog.Any("error", result.Err))...)
	}
	if p.metrics != nil {
		p.metrics.ObservePosting(string(family), op, kind, elapsed)
	}
	if p.audit == nil {
		return
	}
	id := cmd.ID
	if id == 0 {
		id = doc.ID
	}
	meta := map[string]any{"family": string(family)}
	if doc.Number != "" {
		meta["number"] = doc.Number
	}
	if result.OK() {
		meta["version"] = doc.Version
		if !doc.GrandTotal.IsZero() {
			meta["grand_total"] = shared.FormatAmount(doc.GrandTotal)
		}
	} else {
		meta["kind"] = string(result.Kind)
		meta["error"] = result.Message
	}
	actor := strings.TrimSpace(cmd.Actor)
	if actor == "" {
		actor = shared.ActorFromContext(ctx)
	}
	if err := p.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   "document." + op,
		Entity:   string(family),
		EntityID: strconv.FormatInt(id, 10),
		Outcome:  outcome,
		Meta:     meta,
		At:       p.clock.Now(),
	}); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.WarnContext(ctx, "audit record failed", slog.String("operation", op), slog.Any("error", err))
	}
}

// lockDocument loads the document with a row lock and checks the caller's
// version before anything else, so a stale caller always sees a conflict.
func (p *pipeline) lockDocument(ctx context.Context, tx Tx, family Family, cmd Command) (Document, error) {
	if strings.TrimSpace(cmd.Actor) == "" {
		return Document{}, ErrActorRequired
	}
	doc, err := tx.Documents().GetForUpdate(ctx, cmd.ID)
	if err != nil {
		return Document{}, err
	}
	if doc.IsDeleted {
		return Document{}, fmt.Errorf("%w: %d", ErrDocumentNotFound, cmd.ID)
	}
	if doc.Family != family {
		return Document{}, fmt.Errorf("%w: %s is a %s", ErrFamilyMismatch, doc.Number, doc.Family)
	}
	if err := p.guard.EnsureVersion(doc.Version, cmd.Version); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (p *pipeline) post(ctx context.Context, tx Tx, family Family, asm assembler, cmd Command, events *shared.EventLog) (Document, error) {
	doc, err := p.lockDocument(ctx, tx, family, cmd)
	if err != nil {
		return Document{}, err
	}
	if family.IsQuotation() {
		return Document{}, fmt.Errorf("%w: %s", ErrNotPostable, doc.Number)
	}
	if doc.Status != StatusDraft {
		return Document{}, fmt.Errorf("%w: %s is %s", ErrNotDraft, doc.Number, doc.Status)
	}
	if _, err := fiscal.Admit(ctx, tx.Calendar(), doc.Date); err != nil {
		return Document{}, err
	}
	if err := p.prepare(ctx, tx, &doc); err != nil {
		return Document{}, err
	}
	if err := asm.check(ctx, tx, &doc); err != nil {
		return Document{}, err
	}
	if err := asm.post(ctx, tx, &doc, cmd.Actor, events); err != nil {
		return Document{}, err
	}
	now := p.clock.Now()
	expected := doc.Version
	doc.Status = StatusPosted
	doc.PostedAt = &now
	doc.PostedBy = cmd.Actor
	doc.Touch(cmd.Actor, now)
	doc.Advance()
	if err := tx.Documents().Update(ctx, doc, expected); err != nil {
		return Document{}, err
	}
	events.Record(shared.EventDocumentPosted, string(family), doc.ID, now, map[string]any{
		"number":      doc.Number,
		"grand_total": doc.GrandTotal.String(),
		"journal_id":  doc.JournalEntryID,
	})
	return doc, nil
}

// prepare resolves line units, recomputes line figures and runs the VAT hook.
func (p *pipeline) prepare(ctx context.Context, tx Tx, doc *Document) error {
	switch {
	case doc.Family == FamilyManualJournal:
		if len(doc.Entries) == 0 {
			return ErrNoLines
		}
		return nil
	case doc.Family.IsCash():
		if !doc.Amount.IsPositive() {
			return ErrInvalidAmount
		}
		return nil
	}
	if len(doc.Lines) == 0 {
		return ErrNoLines
	}
	if err := validateLines(doc.Family, doc.Lines); err != nil {
		return err
	}
	if err := p.resolveUnits(ctx, tx, doc); err != nil {
		return err
	}
	doc.Recalculate()
	if p.vat != nil && doc.Family != FamilyInventoryAdjustment {
		if err := p.vat.Apply(ctx, doc); err != nil {
			return fmt.Errorf("%w: %v", ErrHookRejected, err)
		}
	}
	return nil
}

func (p *pipeline) cancel(ctx context.Context, tx Tx, family Family, cmd Command, events *shared.EventLog) (Document, error) {
	doc, err := p.lockDocument(ctx, tx, family, cmd)
	if err != nil {
		return Document{}, err
	}
	if doc.Status != StatusPosted {
		return Document{}, fmt.Errorf("%w: %s is %s", ErrNotPosted, doc.Number, doc.Status)
	}
	if doc.Settleable() && doc.PaidAmount.IsPositive() {
		return Document{}, fmt.Errorf("%w: %s paid %s", ErrSettled, doc.Number, shared.FormatAmount(doc.PaidAmount))
	}
	reason := "Cancellation of " + doc.Number
	for _, id := range []*int64{doc.JournalEntryID, doc.CogsJournalEntryID} {
		if id == nil {
			continue
		}
		entry, err := tx.Ledger().JournalForUpdate(ctx, *id)
		if err != nil {
			return Document{}, err
		}
		if family == FamilyManualJournal && entry.Status == accounting.JournalStatusReversed {
			// reversed directly through the ledger already
			continue
		}
		if _, err := p.ledger.Reverse(ctx, tx.Ledger(), tx.Calendar(), &entry, reason, cmd.Actor, events); err != nil {
			return Document{}, err
		}
	}
	if family.AffectsStock() {
		if _, err := p.stock.Reverse(ctx, tx.Stock(), stockSource(doc), cmd.Actor, events); err != nil {
			return Document{}, err
		}
	}
	if doc.SettlesDocumentID != nil {
		if err := p.settle(ctx, tx, doc, doc.Amount.Neg(), cmd.Actor); err != nil {
			return Document{}, err
		}
	}
	now := p.clock.Now()
	expected := doc.Version
	doc.Status = StatusCancelled
	doc.CancelledAt = &now
	doc.CancelledBy = cmd.Actor
	doc.Touch(cmd.Actor, now)
	doc.Advance()
	if err := tx.Documents().Update(ctx, doc, expected); err != nil {
		return Document{}, err
	}
	events.Record(shared.EventDocumentCancelled, string(family), doc.ID, now, map[string]any{
		"number": doc.Number,
		"reason": reason,
	})
	return doc, nil
}

// settle moves delta into the paid amount of the invoice doc settles.
func (p *pipeline) settle(ctx context.Context, tx Tx, doc Document, delta decimal.Decimal, actor string) error {
	invoice, err := tx.Documents().GetForUpdate(ctx, *doc.SettlesDocumentID)
	if err != nil {
		return err
	}
	if delta.IsPositive() && (invoice.Status != StatusPosted || invoice.Family != settledFamily(doc.Family)) {
		return fmt.Errorf("%w: %s is a %s %s", ErrInvalidSettlement, invoice.Number, invoice.Status, invoice.Family)
	}
	paid := invoice.PaidAmount.Add(delta)
	if paid.IsNegative() {
		paid = decimal.Zero
	}
	if paid.GreaterThan(invoice.GrandTotal) {
		return fmt.Errorf("%w: %s due %s", ErrOverSettlement, invoice.Number, shared.FormatAmount(invoice.BalanceDue()))
	}
	expected := invoice.Version
	invoice.PaidAmount = paid
	invoice.Touch(actor, p.clock.Now())
	invoice.Advance()
	return tx.Documents().Update(ctx, invoice, expected)
}

func (p *pipeline) accountID(ctx context.Context, tx Tx, code string) (int64, error) {
	acc, err := tx.Ledger().AccountByCode(ctx, code)
	if err != nil {
		return 0, err
	}
	return acc.ID, nil
}

// journal posts one entry sourced from doc.
func (p *pipeline) journal(ctx context.Context, tx Tx, doc Document, description string, lines []accounting.JournalLine, actor string, events *shared.EventLog) (*accounting.JournalEntry, error) {
	id := doc.ID
	entry, err := accounting.NewDraft(accounting.DraftInput{
		Date:        doc.Date,
		Description: description,
		Reference:   doc.Number,
		SourceType:  doc.Family.SourceType(),
		SourceID:    &id,
	})
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		if l.Debit.IsZero() && l.Credit.IsZero() {
			continue
		}
		if err := entry.AddLine(l.AccountID, l.Debit, l.Credit, l.Description, l.DimWarehouseID); err != nil {
			return nil, err
		}
	}
	if err := p.ledger.Post(ctx, tx.Ledger(), tx.Calendar(), entry, actor, events); err != nil {
		return nil, err
	}
	return entry, nil
}

// settledFamily is the invoice family a cash document may settle.
func settledFamily(f Family) Family {
	switch f {
	case FamilyCashReceipt:
		return FamilySalesInvoice
	case FamilyCashPayment:
		return FamilyPurchaseInvoice
	}
	return ""
}

func stockSource(doc Document) inventory.Source {
	return inventory.Source{Type: string(doc.Family), ID: doc.ID, Number: doc.Number}
}

// stockOrder returns line indexes ordered by product then warehouse so that
// concurrent postings take row locks in the same order.
func stockOrder(doc Document) []int {
	idx := make([]int, len(doc.Lines))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		la, lb := doc.Lines[idx[a]], doc.Lines[idx[b]]
		if la.ProductID != lb.ProductID {
			return la.ProductID < lb.ProductID
		}
		return la.Warehouse(doc) < lb.Warehouse(doc)
	})
	return idx
}

// resolveUnits takes every line's conversion factor from the product's
// registered units. Whatever factor the caller sent is replaced.
func (p *pipeline) resolveUnits(ctx context.Context, tx Tx, doc *Document) error {
	products := make(map[int64]inventory.Product)
	for i := range doc.Lines {
		l := &doc.Lines[i]
		product, ok := products[l.ProductID]
		if !ok {
			var err error
			product, err = tx.Stock().Product(ctx, l.ProductID)
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			if !product.IsActive {
				return fmt.Errorf("line %d: %w: %s", i+1, inventory.ErrProductInactive, product.Code)
			}
			products[l.ProductID] = product
		}
		factor, err := product.UnitFactor(l.UnitID)
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		l.ConversionFactor = factor
		if doc.Family == FamilyInventoryAdjustment {
			l.UnitPrice, l.DiscountPercent, l.VatRate = decimal.Zero, decimal.Zero, decimal.Zero
		}
	}
	return nil
}

// insertDraft numbers doc and stores it as a version 1 draft of family.
func (p *pipeline) insertDraft(ctx context.Context, tx Tx, family Family, doc Document, actor string) (Document, error) {
	now := p.clock.Now()
	if doc.Date.IsZero() {
		doc.Date = now
	}
	doc.Family = family
	if family.HasLines() {
		if err := p.resolveUnits(ctx, tx, &doc); err != nil {
			return Document{}, err
		}
	}
	seq, err := tx.Documents().NextNumber(ctx, family, SequencePeriod(doc.Date))
	if err != nil {
		return Document{}, err
	}
	doc.ID = 0
	doc.Number = FormatDocumentNumber(family, doc.Date, seq)
	doc.Status = StatusDraft
	doc.CompanyID = shared.DefaultCompanyID
	doc.PaidAmount = decimal.Zero
	doc.JournalEntryID, doc.CogsJournalEntryID, doc.ConvertedToID = nil, nil, nil
	for i := range doc.Lines {
		doc.Lines[i].ID, doc.Lines[i].DocumentID = 0, 0
		doc.Lines[i].SystemQuantity = decimal.Zero
	}
	doc.Recalculate()
	doc.Stamp(actor, now)
	doc.Version = 1
	if err := tx.Documents().Insert(ctx, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func validateDraft(family Family, doc Document) error {
	switch {
	case family == FamilyManualJournal:
		return nil
	case family.IsCash():
		if doc.Amount.IsNegative() {
			return ErrInvalidAmount
		}
		return nil
	}
	if doc.ValidUntil != nil && !family.IsQuotation() {
		return fmt.Errorf("%w: only quotations carry a validity date", ErrInvalidLine)
	}
	if doc.OriginalInvoiceID != nil && family.ReturnOf() == "" {
		return fmt.Errorf("%w: only returns reference an original invoice", ErrInvalidOriginal)
	}
	return validateLines(family, doc.Lines)
}

func validateLines(family Family, lines []Line) error {
	hundred := decimal.NewFromInt(100)
	counted := family == FamilyInventoryAdjustment
	for i, l := range lines {
		switch {
		case l.ProductID == 0:
			return fmt.Errorf("%w: line %d has no product", ErrInvalidLine, i+1)
		case counted && l.Quantity.IsNegative():
			return fmt.Errorf("%w: line %d counted quantity is negative", ErrInvalidLine, i+1)
		case !counted && !l.Quantity.IsPositive():
			return fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidLine, i+1)
		case l.UnitPrice.IsNegative():
			return fmt.Errorf("%w: line %d unit price is negative", ErrInvalidLine, i+1)
		case l.DiscountPercent.IsNegative() || l.DiscountPercent.GreaterThan(hundred):
			return fmt.Errorf("%w: line %d discount must be between 0 and 100", ErrInvalidLine, i+1)
		case l.VatRate.IsNegative():
			return fmt.Errorf("%w: line %d VAT rate is negative", ErrInvalidLine, i+1)
		}
	}
	return nil
}
