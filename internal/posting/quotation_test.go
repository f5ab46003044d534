package posting_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/posting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

func day(y int, m time.Month, dd int) *time.Time {
	t := time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestSalesQuotationConvertsIntoInvoiceDraft(t *testing.T) {
	f := newFixture(t)
	q := f.reg.SalesQuotations
	quote := f.draft(t, q.Orchestrator, posting.Document{
		PartyID:     ptr(9),
		WarehouseID: warehouse,
		ValidUntil:  day(2026, time.March, 31),
		Lines:       []posting.Line{f.line("4", "20", "15")},
	})
	require.Equal(t, "SQ-202603-0001", quote.Number)
	require.True(t, quote.GrandTotal.Equal(d("92")))

	res := q.Post(f.ctx, posting.Command{ID: quote.ID, Version: quote.Version, Actor: actor})
	require.Equal(t, shared.KindInvariant, res.Kind)
	require.ErrorIs(t, res.Err, posting.ErrNotPostable)

	res = q.Convert(f.ctx, posting.Command{ID: quote.ID, Version: quote.Version, Actor: actor})
	require.ErrorIs(t, res.Err, posting.ErrNotConfirmed)

	confirmed := q.Confirm(f.ctx, posting.Command{ID: quote.ID, Version: quote.Version, Actor: actor})
	require.True(t, confirmed.OK(), confirmed.Message)
	require.Equal(t, posting.StatusConfirmed, confirmed.Value.Status)
	require.Equal(t, []string{shared.EventDocumentConfirmed}, eventNames(confirmed.Events))

	converted := q.Convert(f.ctx, posting.Command{ID: quote.ID, Version: confirmed.Value.Version, Actor: actor})
	require.True(t, converted.OK(), converted.Message)
	require.Equal(t, posting.StatusConverted, converted.Value.Status)
	require.NotNil(t, converted.Value.ConvertedToID)
	require.Contains(t, eventNames(converted.Events), shared.EventDocumentConverted)
	require.Empty(t, f.store.Journals())
	require.Empty(t, f.store.Movements())

	invoice := f.current(t, *converted.Value.ConvertedToID)
	require.Equal(t, posting.FamilySalesInvoice, invoice.Family)
	require.Equal(t, posting.StatusDraft, invoice.Status)
	require.Equal(t, "SI-202603-0001", invoice.Number)
	require.Equal(t, quote.Number, invoice.Reference)
	require.Equal(t, quote.ID, *invoice.QuotationID)
	require.Equal(t, *quote.PartyID, *invoice.PartyID)
	require.Len(t, invoice.Lines, 1)
	require.NotEqual(t, quote.Lines[0].ID, invoice.Lines[0].ID)
	require.True(t, invoice.GrandTotal.Equal(quote.GrandTotal))

	again := q.Convert(f.ctx, posting.Command{ID: quote.ID, Version: converted.Value.Version, Actor: actor})
	require.ErrorIs(t, again.Err, posting.ErrNotConfirmed)

	f.purchase(t, "10", "10")
	posted := f.reg.SalesInvoices.Post(f.ctx, posting.Command{ID: invoice.ID, Version: invoice.Version, Actor: actor})
	require.True(t, posted.OK(), posted.Message)
}

func TestPurchaseQuotationConvertsIntoPurchaseInvoice(t *testing.T) {
	f := newFixture(t)
	q := f.reg.PurchaseQuotations
	quote := f.draft(t, q.Orchestrator, posting.Document{
		PartyID:      ptr(7),
		WarehouseID:  warehouse,
		VatInclusive: true,
		Lines:        []posting.Line{f.line("3", "115", "15")},
	})
	confirmed := q.Confirm(f.ctx, posting.Command{ID: quote.ID, Version: quote.Version, Actor: actor})
	require.True(t, confirmed.OK(), confirmed.Message)
	converted := q.Convert(f.ctx, posting.Command{ID: quote.ID, Version: confirmed.Value.Version, Actor: actor})
	require.True(t, converted.OK(), converted.Message)

	invoice := f.current(t, *converted.Value.ConvertedToID)
	require.Equal(t, posting.FamilyPurchaseInvoice, invoice.Family)
	require.True(t, invoice.VatInclusive)
	require.True(t, invoice.NetTotal.Equal(d("300")))
}

func TestQuotationConfirmRequiresPartyAndLines(t *testing.T) {
	f := newFixture(t)
	q := f.reg.SalesQuotations

	anonymous := f.draft(t, q.Orchestrator, posting.Document{
		WarehouseID: warehouse,
		Lines:       []posting.Line{f.line("1", "10", "0")},
	})
	res := q.Confirm(f.ctx, posting.Command{ID: anonymous.ID, Version: anonymous.Version, Actor: actor})
	require.ErrorIs(t, res.Err, posting.ErrPartyRequired)

	empty := f.draft(t, q.Orchestrator, posting.Document{PartyID: ptr(9)})
	res = q.Confirm(f.ctx, posting.Command{ID: empty.ID, Version: empty.Version, Actor: actor})
	require.ErrorIs(t, res.Err, posting.ErrNoLines)
}

func TestExpiredQuotationCannotConvert(t *testing.T) {
	f := newFixture(t)
	q := f.reg.SalesQuotations
	quote := f.draft(t, q.Orchestrator, posting.Document{
		PartyID:    ptr(9),
		ValidUntil: day(2026, time.March, 9),
		Lines:      []posting.Line{f.line("1", "10", "0")},
	})
	confirmed := q.Confirm(f.ctx, posting.Command{ID: quote.ID, Version: quote.Version, Actor: actor})
	require.True(t, confirmed.OK(), confirmed.Message)

	res := q.Convert(f.ctx, posting.Command{ID: quote.ID, Version: confirmed.Value.Version, Actor: actor})
	require.Equal(t, shared.KindValidation, res.Kind)
	require.ErrorIs(t, res.Err, posting.ErrQuotationExpired)
	require.Equal(t, posting.StatusConfirmed, f.current(t, quote.ID).Status)
}

func TestValidityDateBelongsToQuotations(t *testing.T) {
	f := newFixture(t)
	res := f.reg.SalesInvoices.CreateDraft(f.ctx, posting.Document{
		PartyID:    ptr(9),
		ValidUntil: day(2026, time.March, 31),
		Lines:      []posting.Line{f.line("1", "10", "0")},
	}, actor)
	require.ErrorIs(t, res.Err, posting.ErrInvalidLine)

	_, err := f.reg.Quotations(posting.FamilySalesInvoice)
	require.ErrorIs(t, err, posting.ErrNotQuotation)
}

func TestYearEndCloseIgnoresQuotationDrafts(t *testing.T) {
	f := newFixture(t)
	f.draft(t, f.reg.SalesQuotations.Orchestrator, posting.Document{
		PartyID: ptr(9),
		Lines:   []posting.Line{f.line("1", "10", "0")},
	})
	f.purchase(t, "1", "10")

	res := f.reg.YearEnd.Close(f.ctx, posting.Command{ID: f.seed.Year.ID, Actor: actor})
	require.True(t, res.OK(), res.Message)
}
