package posting_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/fiscal"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/inventory"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/posting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/testing/pgtest"
)

func TestPostgresPurchaseInvoiceRoundTrip(t *testing.T) {
	pool := pgtest.Pool(t)
	ctx := context.Background()
	clock := shared.FixedClock(now)
	audit := shared.NewAuditLogger(pool)

	pgtest.SeedAccounts(t, pool)
	productID := pgtest.SeedProduct(t, pool, "P-PG")

	calendar := fiscal.NewService(fiscal.NewRepository(pool), audit, clock, nil)
	year, err := calendar.CreateYear(ctx, 2026, actor)
	require.NoError(t, err)
	_, err = calendar.Activate(ctx, year.ID, actor)
	require.NoError(t, err)

	reg := posting.NewRegistry(posting.NewRepository(pool), audit, nil, posting.WithClock(clock))
	o := reg.PurchaseInvoices.Orchestrator

	created := o.CreateDraft(ctx, posting.Document{
		PartyID:     ptr(7),
		WarehouseID: warehouse,
		Lines: []posting.Line{
			{ProductID: productID, Quantity: d("100"), UnitPrice: d("10"), VatRate: d("15")},
		},
	}, actor)
	require.True(t, created.OK(), created.Message)
	require.Equal(t, "PI-202603-0001", created.Value.Number)

	// Two writers with the same version: one commits, the other conflicts.
	var wg sync.WaitGroup
	results := make([]shared.Result[posting.Document], 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = o.Post(ctx, posting.Command{ID: created.Value.ID, Version: created.Value.Version, Actor: actor})
		}()
	}
	wg.Wait()
	ok := 0
	for _, res := range results {
		if res.OK() {
			ok++
			continue
		}
		require.Equal(t, shared.KindConcurrency, res.Kind, res.Message)
	}
	require.Equal(t, 1, ok)

	stock := inventory.NewService(inventory.NewRepository(pool))
	card, err := stock.StockCard(ctx, warehouse, productID)
	require.NoError(t, err)
	require.True(t, card.OnHand.Equal(d("100")))
	product, err := stock.Product(ctx, productID)
	require.NoError(t, err)
	require.True(t, product.WeightedAverageCost.Equal(d("10")))

	invoice, err := o.Get(ctx, created.Value.ID)
	require.NoError(t, err)
	ret := reg.PurchaseReturns.CreateDraft(ctx, posting.Document{
		PartyID:           ptr(7),
		WarehouseID:       warehouse,
		OriginalInvoiceID: ptr(invoice.ID),
		Lines:             []posting.Line{{ProductID: productID, Quantity: d("60"), UnitPrice: d("10"), VatRate: d("15")}},
	}, actor)
	require.True(t, ret.OK(), ret.Message)
	res := reg.PurchaseReturns.Post(ctx, posting.Command{ID: ret.Value.ID, Version: ret.Value.Version, Actor: actor})
	require.True(t, res.OK(), res.Message)
	over := reg.PurchaseReturns.CreateDraft(ctx, posting.Document{
		PartyID:           ptr(7),
		WarehouseID:       warehouse,
		OriginalInvoiceID: ptr(invoice.ID),
		Lines:             []posting.Line{{ProductID: productID, Quantity: d("41"), UnitPrice: d("10")}},
	}, actor)
	require.True(t, over.OK(), over.Message)
	res = reg.PurchaseReturns.Post(ctx, posting.Command{ID: over.Value.ID, Version: over.Value.Version, Actor: actor})
	require.ErrorIs(t, res.Err, posting.ErrOverReturn)

	report, err := accounting.NewRepository(pool).CheckIntegrity(ctx, year.ID)
	require.NoError(t, err)
	require.Zero(t, report.Anomalies())
}
