package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/inventory"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/linecalc"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/platform/httpx"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// Publisher receives the events of committed operations.
type Publisher interface {
	Publish(ctx context.Context, events []shared.Event) error
}

// Handler exposes the posting engine over JSON HTTP.
type Handler struct {
	logger    *slog.Logger
	registry  *Registry
	ledger    *accounting.Service
	stock     *inventory.Service
	publisher Publisher
	validator *validator.Validate
}

// NewHandler constructs the posting HTTP handler. ledger, stock and publisher may be nil.
func NewHandler(logger *slog.Logger, registry *Registry, ledger *accounting.Service, stock *inventory.Service, publisher Publisher) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		registry:  registry,
		ledger:    ledger,
		stock:     stock,
		publisher: publisher,
		validator: validator.New(),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/documents/{family}", func(r chi.Router) {
			r.Post("/", h.createDraft)
			r.Get("/next-number", h.nextNumber)
			r.Get("/{id}", h.getDocument)
			r.Post("/{id}/post", h.postDocument)
			r.Post("/{id}/cancel", h.cancelDocument)
			r.Post("/{id}/confirm", h.confirmQuotation)
			r.Post("/{id}/convert", h.convertQuotation)
			r.Delete("/{id}", h.deleteDraft)
		})
		r.Post("/calc/line", h.calcLine)
		r.Post("/calc/totals", h.calcTotals)
		r.Post("/fiscal-years/{id}/close", h.closeYear)
		if h.ledger != nil {
			r.Get("/fiscal-years/{id}/trial-balance", h.trialBalance)
			r.Post("/journals/{id}/reverse", h.reverseJournal)
		}
		if h.stock != nil {
			r.Get("/stock/{warehouse}/{product}", h.stockCard)
		}
	})
}

// lineRequest carries no conversion factor; it is resolved from the
// product's registered units.
type lineRequest struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	UnitID          int64           `json:"unit_id" validate:"gte=0"`
	WarehouseID     int64           `json:"warehouse_id" validate:"gte=0"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	VatRate         decimal.Decimal `json:"vat_rate"`
	CostPrice       decimal.Decimal `json:"cost_price"`
}

type entryRequest struct {
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description" validate:"max=500"`
}

type documentRequest struct {
	Date              string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description       string          `json:"description" validate:"max=500"`
	Reference         string          `json:"reference" validate:"max=100"`
	PartyID           *int64          `json:"party_id" validate:"omitempty,gt=0"`
	WarehouseID       int64           `json:"warehouse_id" validate:"gte=0"`
	VatInclusive      bool            `json:"vat_inclusive"`
	CashboxID         *int64          `json:"cashbox_id" validate:"omitempty,gt=0"`
	TargetCashboxID   *int64          `json:"target_cashbox_id" validate:"omitempty,gt=0"`
	ContraAccountID   *int64          `json:"contra_account_id" validate:"omitempty,gt=0"`
	Amount            decimal.Decimal `json:"amount"`
	SettlesDocumentID *int64          `json:"settles_document_id" validate:"omitempty,gt=0"`
	OriginalInvoiceID *int64          `json:"original_invoice_id" validate:"omitempty,gt=0"`
	ValidUntil        string          `json:"valid_until" validate:"omitempty,datetime=2006-01-02"`
	Lines             []lineRequest   `json:"lines" validate:"max=500,dive"`
	Entries           []entryRequest  `json:"entries" validate:"max=500,dive"`
}

func (req documentRequest) document() (Document, error) {
	doc := Document{
		Description:       strings.TrimSpace(req.Description),
		Reference:         strings.TrimSpace(req.Reference),
		PartyID:           req.PartyID,
		WarehouseID:       req.WarehouseID,
		VatInclusive:      req.VatInclusive,
		CashboxID:         req.CashboxID,
		TargetCashboxID:   req.TargetCashboxID,
		ContraAccountID:   req.ContraAccountID,
		Amount:            req.Amount,
		SettlesDocumentID: req.SettlesDocumentID,
		OriginalInvoiceID: req.OriginalInvoiceID,
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return Document{}, err
		}
		doc.Date = date
	}
	if req.ValidUntil != "" {
		until, err := time.Parse("2006-01-02", req.ValidUntil)
		if err != nil {
			return Document{}, err
		}
		doc.ValidUntil = &until
	}
	for _, l := range req.Lines {
		doc.Lines = append(doc.Lines, Line{
			ProductID:       l.ProductID,
			UnitID:          l.UnitID,
			WarehouseID:     l.WarehouseID,
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			DiscountPercent: l.DiscountPercent,
			VatRate:         l.VatRate,
			CostPrice:       l.CostPrice,
		})
	}
	for _, e := range req.Entries {
		doc.Entries = append(doc.Entries, Entry{
			AccountID:   e.AccountID,
			Debit:       e.Debit,
			Credit:      e.Credit,
			Description: strings.TrimSpace(e.Description),
		})
	}
	return doc, nil
}

type commandRequest struct {
	Version int64 `json:"version" validate:"required,gt=0"`
}

type reverseRequest struct {
	Version int64  `json:"version" validate:"required,gt=0"`
	Reason  string `json:"reason" validate:"required,max=500"`
}

type totalsRequest struct {
	Lines []linecalc.Request `json:"lines" validate:"required,min=1,max=500"`
}

type numberResponse struct {
	Family Family `json:"family"`
	Number string `json:"number"`
}

func (h *Handler) orchestrator(w http.ResponseWriter, r *http.Request) (*Orchestrator, bool) {
	family, err := ParseFamily(chi.URLParam(r, "family"))
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	o, err := h.registry.For(family)
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	return o, true
}

func (h *Handler) createDraft(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	var req documentRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := req.document()
	if err != nil {
		httpx.BadRequest(w, fmt.Sprintf("invalid date: %v", err))
		return
	}
	result := o.CreateDraft(r.Context(), doc, shared.ActorFromContext(r.Context()))
	httpx.RespondResult(w, http.StatusCreated, result)
}

func (h *Handler) nextNumber(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	number, err := o.NextNumber(r.Context())
	if err != nil {
		h.logger.Error("preview document number", slog.String("family", string(o.Family())), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, numberResponse{Family: o.Family(), Number: number})
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	doc, err := o.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) postDocument(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, (*Orchestrator).Post)
}

func (h *Handler) cancelDocument(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, (*Orchestrator).Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, run func(*Orchestrator, context.Context, Command) shared.Result[Document]) {
	o, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req commandRequest
	if !h.decode(w, r, &req) {
		return
	}
	result := run(o, r.Context(), Command{ID: id, Version: req.Version, Actor: shared.ActorFromContext(r.Context())})
	h.publish(r.Context(), result.Events)
	httpx.RespondResult(w, http.StatusOK, result)
}

func (h *Handler) confirmQuotation(w http.ResponseWriter, r *http.Request) {
	h.quotationStep(w, r, Quotations.Confirm)
}

func (h *Handler) convertQuotation(w http.ResponseWriter, r *http.Request) {
	h.quotationStep(w, r, Quotations.Convert)
}

func (h *Handler) quotationStep(w http.ResponseWriter, r *http.Request, run func(Quotations, context.Context, Command) shared.Result[Document]) {
	family, err := ParseFamily(chi.URLParam(r, "family"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.registry.Quotations(family)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req commandRequest
	if !h.decode(w, r, &req) {
		return
	}
	result := run(q, r.Context(), Command{ID: id, Version: req.Version, Actor: shared.ActorFromContext(r.Context())})
	h.publish(r.Context(), result.Events)
	httpx.RespondResult(w, http.StatusOK, result)
}

func (h *Handler) deleteDraft(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orchestrator(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	version, err := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	if err != nil || version <= 0 {
		httpx.BadRequest(w, "version query parameter is required")
		return
	}
	result := o.DeleteDraft(r.Context(), Command{ID: id, Version: version, Actor: shared.ActorFromContext(r.Context())})
	httpx.RespondResult(w, http.StatusOK, result)
}

func (h *Handler) calcLine(w http.ResponseWriter, r *http.Request) {
	var req linecalc.Request
	if !h.decode(w, r, &req) {
		return
	}
	httpx.JSON(w, http.StatusOK, linecalc.CalculateLine(req))
}

func (h *Handler) calcTotals(w http.ResponseWriter, r *http.Request) {
	var req totalsRequest
	if !h.decode(w, r, &req) {
		return
	}
	httpx.JSON(w, http.StatusOK, linecalc.CalculateTotals(req.Lines))
}

func (h *Handler) closeYear(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result := h.registry.YearEnd.Close(r.Context(), Command{ID: id, Actor: shared.ActorFromContext(r.Context())})
	h.publish(r.Context(), result.Events)
	httpx.RespondResult(w, http.StatusOK, result)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tb, err := h.ledger.TrialBalance(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) reverseJournal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req reverseRequest
	if !h.decode(w, r, &req) {
		return
	}
	result := h.ledger.ReverseJournal(r.Context(), accounting.ReverseInput{
		EntryID: id,
		Version: req.Version,
		Reason:  req.Reason,
		Actor:   shared.ActorFromContext(r.Context()),
	})
	h.publish(r.Context(), result.Events)
	httpx.RespondResult(w, http.StatusOK, result)
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	warehouseID, ok := pathID(w, r, "warehouse")
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "product")
	if !ok {
		return
	}
	card, err := h.stock.StockCard(r.Context(), warehouseID, productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, card)
}

// publish hands committed events to the publisher. A publish failure does not
// undo the committed operation, so it is only logged.
func (h *Handler) publish(ctx context.Context, events []shared.Event) {
	if h.publisher == nil || len(events) == 0 {
		return
	}
	if err := h.publisher.Publish(ctx, events); err != nil {
		h.logger.Error("publish events", slog.Int("count", len(events)), slog.Any("error", err))
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.BadRequest(w, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.BadRequest(w, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return id, true
}
