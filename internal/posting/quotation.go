package posting

import (
	"context"
	"fmt"
	"time"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// Quotations runs the quotation workflow: draft, confirm, then convert into
// an invoice draft. Quotations never post and touch neither the ledger nor
// stock.
type Quotations struct{ *Orchestrator }

// PurchaseQuotations are supplier quotations converted into purchase invoices.
type PurchaseQuotations struct{ Quotations }

// SalesQuotations are customer quotations converted into sales invoices.
type SalesQuotations struct{ Quotations }

// Confirm freezes a draft quotation so it can be converted.
func (q Quotations) Confirm(ctx context.Context, cmd Command) shared.Result[Document] {
	return q.p.run(ctx, q.family, "confirm", cmd, func(ctx context.Context, tx Tx, events *shared.EventLog) (Document, error) {
		doc, err := q.p.lockDocument(ctx, tx, q.family, cmd)
		if err != nil {
			return Document{}, err
		}
		if doc.Status != StatusDraft {
			return Document{}, fmt.Errorf("%w: %s is %s", ErrNotDraft, doc.Number, doc.Status)
		}
		if err := requireParty(&doc); err != nil {
			return Document{}, err
		}
		if len(doc.Lines) == 0 {
			return Document{}, ErrNoLines
		}
		if err := validateLines(q.family, doc.Lines); err != nil {
			return Document{}, err
		}
		if err := q.p.resolveUnits(ctx, tx, &doc); err != nil {
			return Document{}, err
		}
		doc.Recalculate()
		now := q.p.clock.Now()
		expected := doc.Version
		doc.Status = StatusConfirmed
		doc.Touch(cmd.Actor, now)
		doc.Advance()
		if err := tx.Documents().Update(ctx, doc, expected); err != nil {
			return Document{}, err
		}
		events.Record(shared.EventDocumentConfirmed, string(q.family), doc.ID, now, map[string]any{
			"number":      doc.Number,
			"grand_total": doc.GrandTotal.String(),
		})
		return doc, nil
	})
}

// Convert creates an invoice draft from a confirmed quotation and marks the
// quotation converted. The returned quotation carries the invoice id in
// ConvertedToID.
func (q Quotations) Convert(ctx context.Context, cmd Command) shared.Result[Document] {
	return q.p.run(ctx, q.family, "convert", cmd, func(ctx context.Context, tx Tx, events *shared.EventLog) (Document, error) {
		doc, err := q.p.lockDocument(ctx, tx, q.family, cmd)
		if err != nil {
			return Document{}, err
		}
		if doc.Status != StatusConfirmed {
			return Document{}, fmt.Errorf("%w: %s is %s", ErrNotConfirmed, doc.Number, doc.Status)
		}
		now := q.p.clock.Now()
		if expired(doc.ValidUntil, now) {
			return Document{}, fmt.Errorf("%w: %s was valid until %s", ErrQuotationExpired, doc.Number, doc.ValidUntil.Format("2006-01-02"))
		}
		quotationID := doc.ID
		lines := make([]Line, len(doc.Lines))
		copy(lines, doc.Lines)
		invoice, err := q.p.insertDraft(ctx, tx, q.family.ConvertsTo(), Document{
			Date:         now,
			Description:  "Converted from quotation " + doc.Number,
			Reference:    doc.Number,
			PartyID:      doc.PartyID,
			WarehouseID:  doc.WarehouseID,
			VatInclusive: doc.VatInclusive,
			QuotationID:  &quotationID,
			Lines:        lines,
		}, cmd.Actor)
		if err != nil {
			return Document{}, err
		}
		expected := doc.Version
		doc.Status = StatusConverted
		doc.ConvertedToID = &invoice.ID
		doc.Touch(cmd.Actor, now)
		doc.Advance()
		if err := tx.Documents().Update(ctx, doc, expected); err != nil {
			return Document{}, err
		}
		events.Record(shared.EventDocumentConverted, string(q.family), doc.ID, now, map[string]any{
			"number":         doc.Number,
			"invoice_id":     invoice.ID,
			"invoice_number": invoice.Number,
		})
		return doc, nil
	})
}

// expired reports whether now is past the whole validUntil day.
func expired(validUntil *time.Time, now time.Time) bool {
	if validUntil == nil {
		return false
	}
	y, m, d := validUntil.Date()
	return !now.Before(time.Date(y, m, d+1, 0, 0, 0, 0, validUntil.Location()))
}
