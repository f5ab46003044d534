package posting_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/inventory"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/linecalc"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/platform/httpx"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/posting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(_ context.Context, events []shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func newTestRouter(t *testing.T) (*fixture, *recordingPublisher, http.Handler) {
	t.Helper()
	f := newFixture(t)
	clock := shared.FixedClock(now)
	ledger := accounting.NewService(f.store.Accounting(), f.store, clock, nil)
	stock := inventory.NewService(f.store.Inventory())
	pub := &recordingPublisher{}
	r := chi.NewRouter()
	posting.NewHandler(nil, f.reg, ledger, stock, pub).MountRoutes(r)
	return f, pub, r
}

func call(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type documentEnvelope struct {
	Value  posting.Document `json:"value"`
	Events []shared.Event   `json:"events"`
}

func TestHandlerDraftPostCancel(t *testing.T) {
	f, pub, h := newTestRouter(t)

	rec := call(t, h, http.MethodPost, "/api/v1/documents/purchase_invoice", map[string]any{
		"party_id":     7,
		"warehouse_id": warehouse,
		"lines": []map[string]any{
			{"product_id": f.product.ID, "quantity": "10", "unit_price": "10", "vat_rate": "15"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created documentEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "PI-202603-0001", created.Value.Number)
	require.True(t, created.Value.GrandTotal.Equal(d("115")))

	path := fmt.Sprintf("/api/v1/documents/purchase_invoice/%d", created.Value.ID)
	rec = call(t, h, http.MethodPost, path+"/post", map[string]any{"version": created.Value.Version})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var posted documentEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posted))
	require.Equal(t, posting.StatusPosted, posted.Value.Status)
	require.NotEmpty(t, posted.Events)
	require.Len(t, pub.events, len(posted.Events))

	rec = call(t, h, http.MethodPost, path+"/post", map[string]any{"version": created.Value.Version})
	require.Equal(t, http.StatusConflict, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, string(shared.KindConcurrency), problem.Type)

	rec = call(t, h, http.MethodPost, path+"/post", map[string]any{"version": posted.Value.Version})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = call(t, h, http.MethodPost, path+"/cancel", map[string]any{"version": posted.Value.Version})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, h, http.MethodGet, fmt.Sprintf("/api/v1/stock/%d/%d", warehouse, f.product.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var card inventory.StockCard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &card))
	require.True(t, card.OnHand.IsZero())
	require.Len(t, card.Movements, 2)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	f, _, h := newTestRouter(t)

	rec := call(t, h, http.MethodPost, "/api/v1/documents/payroll", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodPost, "/api/v1/documents/sales_invoice", map[string]any{
		"lines": []map[string]any{{"product_id": 0, "quantity": "1"}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodPost, "/api/v1/documents/sales_invoice/1/post", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodPost, "/api/v1/documents/sales_invoice/999/post", map[string]any{"version": 1})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, h, http.MethodPost, "/api/v1/documents/sales_invoice", map[string]any{
		"party_id": 9,
		"unknown":  true,
		"lines":    []map[string]any{{"product_id": f.product.ID, "quantity": "1"}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerNextNumberAndDelete(t *testing.T) {
	f, _, h := newTestRouter(t)

	rec := call(t, h, http.MethodGet, "/api/v1/documents/cash_receipt/next-number", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"family":"cash_receipt","number":"CR-202603-0001"}`, rec.Body.String())

	doc := f.draft(t, f.reg.CashReceipts.Orchestrator, posting.Document{
		PartyID:   ptr(9),
		CashboxID: &f.seed.Cashbox.ID,
		Amount:    d("10"),
	})
	path := fmt.Sprintf("/api/v1/documents/cash_receipt/%d", doc.ID)
	rec = call(t, h, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodDelete, path+"?version=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, h, http.MethodGet, path, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCalculators(t *testing.T) {
	_, _, h := newTestRouter(t)

	rec := call(t, h, http.MethodPost, "/api/v1/calc/line", map[string]any{
		"quantity":         "2",
		"unit_price":       "50",
		"discount_percent": "10",
		"vat_rate":         "15",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var line linecalc.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &line))
	require.True(t, line.NetTotal.Equal(d("90")))
	require.True(t, line.TotalWithVat.Equal(d("103.5")))

	rec = call(t, h, http.MethodPost, "/api/v1/calc/totals", map[string]any{
		"lines": []map[string]any{
			{"quantity": "1", "unit_price": "10"},
			{"quantity": "3", "unit_price": "5", "vat_rate": "10"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var totals linecalc.Totals
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &totals))
	require.True(t, totals.GrandTotal.Equal(d("26.5")))

	rec = call(t, h, http.MethodPost, "/api/v1/calc/totals", map[string]any{"lines": []any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerYearEndAndReversal(t *testing.T) {
	f, _, h := newTestRouter(t)
	posted := f.purchase(t, "1", "10")
	entry := f.journal(t, posted.JournalEntryID)

	rec := call(t, h, http.MethodPost, fmt.Sprintf("/api/v1/journals/%d/reverse", entry.ID), map[string]any{
		"version": entry.Version,
		"reason":  "typo",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = call(t, h, http.MethodGet, fmt.Sprintf("/api/v1/fiscal-years/%d/trial-balance", f.seed.Year.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, h, http.MethodPost, fmt.Sprintf("/api/v1/fiscal-years/%d/close", f.seed.Year.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHandlerQuotationConfirmAndConvert(t *testing.T) {
	f, _, h := newTestRouter(t)

	rec := call(t, h, http.MethodPost, "/api/v1/documents/sales_quotation", map[string]any{
		"party_id":     9,
		"warehouse_id": warehouse,
		"valid_until":  "2026-03-31",
		"lines": []map[string]any{
			{"product_id": f.product.ID, "quantity": "2", "unit_price": "50", "vat_rate": "15"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created documentEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotNil(t, created.Value.ValidUntil)

	path := fmt.Sprintf("/api/v1/documents/sales_quotation/%d", created.Value.ID)
	rec = call(t, h, http.MethodPost, path+"/post", map[string]any{"version": created.Value.Version})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = call(t, h, http.MethodPost, path+"/confirm", map[string]any{"version": created.Value.Version})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var confirmed documentEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmed))

	rec = call(t, h, http.MethodPost, path+"/convert", map[string]any{"version": confirmed.Value.Version})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var converted documentEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &converted))
	require.Equal(t, posting.StatusConverted, converted.Value.Status)
	require.NotNil(t, converted.Value.ConvertedToID)

	rec = call(t, h, http.MethodGet, fmt.Sprintf("/api/v1/documents/sales_invoice/%d", *converted.Value.ConvertedToID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, h, http.MethodPost, "/api/v1/documents/sales_invoice/1/confirm", map[string]any{"version": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
