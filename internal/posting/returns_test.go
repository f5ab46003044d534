package posting_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/inventory"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/posting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

func (f *fixture) purchaseReturn(t *testing.T, invoiceID int64, party int64, qty string) posting.Document {
	t.Helper()
	return f.draft(t, f.reg.PurchaseReturns.Orchestrator, posting.Document{
		PartyID:           ptr(party),
		WarehouseID:       warehouse,
		OriginalInvoiceID: ptr(invoiceID),
		Lines:             []posting.Line{f.line(qty, "10", "15")},
	})
}

func TestReturnIsLimitedToWhatIsLeftOnTheInvoice(t *testing.T) {
	f := newFixture(t)
	invoice := f.purchase(t, "10", "10")

	first := f.purchaseReturn(t, invoice.ID, 7, "6")
	posted := f.reg.PurchaseReturns.Post(f.ctx, posting.Command{ID: first.ID, Version: first.Version, Actor: actor})
	require.True(t, posted.OK(), posted.Message)

	second := f.purchaseReturn(t, invoice.ID, 7, "5")
	res := f.reg.PurchaseReturns.Post(f.ctx, posting.Command{ID: second.ID, Version: second.Version, Actor: actor})
	require.Equal(t, shared.KindValidation, res.Kind)
	require.ErrorIs(t, res.Err, posting.ErrOverReturn)
	require.True(t, f.store.OnHand(warehouse, f.product.ID).Quantity.Equal(d("4")))

	cancel := f.reg.PurchaseReturns.Cancel(f.ctx, posting.Command{ID: first.ID, Version: posted.Value.Version, Actor: actor})
	require.True(t, cancel.OK(), cancel.Message)

	res = f.reg.PurchaseReturns.Post(f.ctx, posting.Command{ID: second.ID, Version: second.Version, Actor: actor})
	require.True(t, res.OK(), "a cancelled return frees its quantity: %s", res.Message)

	rest := f.purchaseReturn(t, invoice.ID, 7, "5")
	res = f.reg.PurchaseReturns.Post(f.ctx, posting.Command{ID: rest.ID, Version: rest.Version, Actor: actor})
	require.True(t, res.OK(), res.Message)

	more := f.purchaseReturn(t, invoice.ID, 7, "0.5")
	res = f.reg.PurchaseReturns.Post(f.ctx, posting.Command{ID: more.ID, Version: more.Version, Actor: actor})
	require.ErrorIs(t, res.Err, posting.ErrOverReturn)
}

func TestReturnMustMatchOriginalInvoice(t *testing.T) {
	f := newFixture(t)
	invoice := f.purchase(t, "10", "10")
	other := f.store.SeedProduct(inventory.Product{Code: "P-2", Name: "Bolt", IsActive: true})

	stranger := f.purchaseReturn(t, invoice.ID, 8, "1")
	res := f.reg.PurchaseReturns.Post(f.ctx, posting.Command{ID: stranger.ID, Version: stranger.Version, Actor: actor})
	require.ErrorIs(t, res.Err, posting.ErrInvalidOriginal)

	wrongFamily := f.draft(t, f.reg.SalesReturns.Orchestrator, posting.Document{
		PartyID:           ptr(7),
		WarehouseID:       warehouse,
		OriginalInvoiceID: ptr(invoice.ID),
		Lines:             []posting.Line{f.line("1", "10", "0")},
	})
	res = f.reg.SalesReturns.Post(f.ctx, posting.Command{ID: wrongFamily.ID, Version: wrongFamily.Version, Actor: actor})
	require.ErrorIs(t, res.Err, posting.ErrInvalidOriginal)

	notOnInvoice := f.draft(t, f.reg.PurchaseReturns.Orchestrator, posting.Document{
		PartyID:           ptr(7),
		WarehouseID:       warehouse,
		OriginalInvoiceID: ptr(invoice.ID),
		Lines:             []posting.Line{{ProductID: other.ID, Quantity: d("1"), UnitPrice: d("10")}},
	})
	res = f.reg.PurchaseReturns.Post(f.ctx, posting.Command{ID: notOnInvoice.ID, Version: notOnInvoice.Version, Actor: actor})
	require.ErrorIs(t, res.Err, posting.ErrOverReturn)

	draftInvoice := f.draft(t, f.reg.PurchaseInvoices.Orchestrator, posting.Document{
		PartyID:     ptr(7),
		WarehouseID: warehouse,
		Lines:       []posting.Line{f.line("1", "10", "0")},
	})
	early := f.purchaseReturn(t, draftInvoice.ID, 7, "1")
	res = f.reg.PurchaseReturns.Post(f.ctx, posting.Command{ID: early.ID, Version: early.Version, Actor: actor})
	require.ErrorIs(t, res.Err, posting.ErrInvalidOriginal)

	created := f.reg.PurchaseInvoices.CreateDraft(f.ctx, posting.Document{
		PartyID:           ptr(7),
		WarehouseID:       warehouse,
		OriginalInvoiceID: ptr(invoice.ID),
		Lines:             []posting.Line{f.line("1", "10", "0")},
	}, actor)
	require.ErrorIs(t, created.Err, posting.ErrInvalidOriginal)
}

func TestSalesReturnAgainstInvoice(t *testing.T) {
	f := newFixture(t)
	f.purchase(t, "10", "10")
	sale := f.post(t, f.reg.SalesInvoices.Orchestrator, posting.Document{
		PartyID:     ptr(9),
		WarehouseID: warehouse,
		Lines:       []posting.Line{f.line("4", "20", "0")},
	})

	ret := f.draft(t, f.reg.SalesReturns.Orchestrator, posting.Document{
		PartyID:           ptr(9),
		WarehouseID:       warehouse,
		OriginalInvoiceID: ptr(sale.ID),
		Lines:             []posting.Line{f.line("5", "20", "0")},
	})
	res := f.reg.SalesReturns.Post(f.ctx, posting.Command{ID: ret.ID, Version: ret.Version, Actor: actor})
	require.ErrorIs(t, res.Err, posting.ErrOverReturn)

	f.post(t, f.reg.SalesReturns.Orchestrator, posting.Document{
		PartyID:           ptr(9),
		WarehouseID:       warehouse,
		OriginalInvoiceID: ptr(sale.ID),
		Lines:             []posting.Line{f.line("4", "20", "0")},
	})
	require.True(t, f.store.OnHand(warehouse, f.product.ID).Quantity.Equal(d("10")))
}
