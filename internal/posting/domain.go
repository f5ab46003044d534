package posting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/accounting"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/linecalc"
	"github.com/peterpeto56u-code/MarcoERP-sub007/internal/shared"
)

// Family distinguishes the document kinds handled by the engine.
type Family string

const (
	FamilyPurchaseInvoice Family = "purchase_invoice"
	FamilySalesInvoice    Family = "sales_invoice"
	FamilyPurchaseReturn  Family = "purchase_return"
	FamilySalesReturn     Family = "sales_return"
	FamilyCashReceipt     Family = "cash_receipt"
	FamilyCashPayment     Family = "cash_payment"
	FamilyCashTransfer    Family = "cash_transfer"
	FamilyManualJournal   Family = "manual_journal"

	FamilyInventoryAdjustment Family = "inventory_adjustment"
	FamilyPurchaseQuotation   Family = "purchase_quotation"
	FamilySalesQuotation      Family = "sales_quotation"
)

// Families lists every family in routing order.
var Families = []Family{
	FamilyPurchaseInvoice, FamilySalesInvoice, FamilyPurchaseReturn, FamilySalesReturn,
	FamilyCashReceipt, FamilyCashPayment, FamilyCashTransfer, FamilyManualJournal,
	FamilyInventoryAdjustment, FamilyPurchaseQuotation, FamilySalesQuotation,
}

// ParseFamily validates a family name taken from a URL or payload.
func ParseFamily(value string) (Family, error) {
	f := Family(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range Families {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFamily, value)
}

// Prefix is the document number prefix of the family.
func (f Family) Prefix() string {
	switch f {
	case FamilyPurchaseInvoice:
		return "PI"
	case FamilySalesInvoice:
		return "SI"
	case FamilyPurchaseReturn:
		return "PR"
	case FamilySalesReturn:
		return "SR"
	case FamilyCashReceipt:
		return "CR"
	case FamilyCashPayment:
		return "CP"
	case FamilyCashTransfer:
		return "CT"
	case FamilyInventoryAdjustment:
		return "IA"
	case FamilyPurchaseQuotation:
		return "PQ"
	case FamilySalesQuotation:
		return "SQ"
	default:
		return "JV-D"
	}
}

// SourceType is the journal source recorded for the family.
func (f Family) SourceType() accounting.SourceType {
	switch f {
	case FamilyPurchaseInvoice:
		return accounting.SourcePurchaseInvoice
	case FamilySalesInvoice:
		return accounting.SourceSalesInvoice
	case FamilyPurchaseReturn:
		return accounting.SourcePurchaseReturn
	case FamilySalesReturn:
		return accounting.SourceSalesReturn
	case FamilyCashReceipt:
		return accounting.SourceCashReceipt
	case FamilyCashPayment:
		return accounting.SourceCashPayment
	case FamilyCashTransfer:
		return accounting.SourceCashTransfer
	case FamilyInventoryAdjustment:
		return accounting.SourceAdjustment
	default:
		return accounting.SourceManual
	}
}

// AffectsStock reports whether posting the family moves inventory.
func (f Family) AffectsStock() bool {
	switch f {
	case FamilyPurchaseInvoice, FamilySalesInvoice, FamilyPurchaseReturn, FamilySalesReturn, FamilyInventoryAdjustment:
		return true
	}
	return false
}

// HasLines reports whether documents of the family carry product lines.
func (f Family) HasLines() bool {
	return f != FamilyManualJournal && !f.IsCash()
}

// IsQuotation reports whether the family is a quotation, which never posts
// and is converted into an invoice instead.
func (f Family) IsQuotation() bool {
	return f == FamilyPurchaseQuotation || f == FamilySalesQuotation
}

// ConvertsTo is the invoice family a quotation is converted into.
func (f Family) ConvertsTo() Family {
	switch f {
	case FamilyPurchaseQuotation:
		return FamilyPurchaseInvoice
	case FamilySalesQuotation:
		return FamilySalesInvoice
	}
	return ""
}

// ReturnOf is the invoice family a return may reference.
func (f Family) ReturnOf() Family {
	switch f {
	case FamilyPurchaseReturn:
		return FamilyPurchaseInvoice
	case FamilySalesReturn:
		return FamilySalesInvoice
	}
	return ""
}

// IsCash reports whether the family is a treasury document.
func (f Family) IsCash() bool {
	switch f {
	case FamilyCashReceipt, FamilyCashPayment, FamilyCashTransfer:
		return true
	}
	return false
}

// Status enumerates document lifecycle states.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPosted    Status = "POSTED"
	StatusCancelled Status = "CANCELLED"
	StatusConfirmed Status = "CONFIRMED"
	StatusConverted Status = "CONVERTED"
)

// Document is the shared aggregate of every family: header, lines and
// totals mirrored from the line calculation engine.
type Document struct {
	shared.Identity
	shared.AuditInfo
	shared.SoftDelete
	shared.CompanyScope
	shared.Versioned
	Family            Family          `json:"family"`
	Number            string          `json:"number"`
	Date              time.Time       `json:"date"`
	Status            Status          `json:"status"`
	Description       string          `json:"description,omitempty"`
	Reference         string          `json:"reference,omitempty"`
	PartyID           *int64          `json:"party_id,omitempty"`
	WarehouseID       int64           `json:"warehouse_id,omitempty"`
	VatInclusive      bool            `json:"vat_inclusive"`
	CashboxID         *int64          `json:"cashbox_id,omitempty"`
	TargetCashboxID   *int64          `json:"target_cashbox_id,omitempty"`
	ContraAccountID   *int64          `json:"contra_account_id,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	SettlesDocumentID *int64          `json:"settles_document_id,omitempty"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	OriginalInvoiceID *int64          `json:"original_invoice_id,omitempty"`
	ValidUntil        *time.Time      `json:"valid_until,omitempty"`
	QuotationID       *int64          `json:"quotation_id,omitempty"`
	ConvertedToID     *int64          `json:"converted_to_id,omitempty"`
	linecalc.Totals
	JournalEntryID     *int64     `json:"journal_entry_id,omitempty"`
	CogsJournalEntryID *int64     `json:"cogs_journal_entry_id,omitempty"`
	PostedAt           *time.Time `json:"posted_at,omitempty"`
	PostedBy           string     `json:"posted_by,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        string     `json:"cancelled_by,omitempty"`
	Lines              []Line     `json:"lines,omitempty"`
	Entries            []Entry    `json:"entries,omitempty"`
}

// Line is one product line of an invoice or return.
type Line struct {
	ID               int64           `json:"id"`
	DocumentID       int64           `json:"document_id"`
	LineNumber       int             `json:"line_number"`
	ProductID        int64           `json:"product_id"`
	UnitID           int64           `json:"unit_id,omitempty"`
	WarehouseID      int64           `json:"warehouse_id,omitempty"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	DiscountPercent  decimal.Decimal `json:"discount_percent"`
	VatRate          decimal.Decimal `json:"vat_rate"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	CostPrice        decimal.Decimal `json:"cost_price"`

	// SystemQuantity is the on-hand base quantity an adjustment line was
	// counted against, captured when the adjustment posts.
	SystemQuantity decimal.Decimal `json:"system_quantity"`
	Calc           linecalc.Result `json:"calc"`
}

// Entry is one account line of a manual journal document.
type Entry struct {
	AccountID   int64           `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// Difference is the counted base quantity less the books; positive is a surplus.
func (l Line) Difference() decimal.Decimal {
	return l.Calc.BaseQuantity.Sub(l.SystemQuantity)
}

// Request maps the line onto the line calculation engine.
func (l Line) Request(vatInclusive bool) linecalc.Request {
	return linecalc.Request{
		Quantity:         l.Quantity,
		UnitPrice:        l.UnitPrice,
		DiscountPercent:  l.DiscountPercent,
		VatRate:          l.VatRate,
		ConversionFactor: l.ConversionFactor,
		CostPrice:        l.CostPrice,
		VatInclusive:     vatInclusive,
	}
}

// Warehouse resolves the line warehouse, falling back to the header.
func (l Line) Warehouse(doc Document) int64 {
	if l.WarehouseID != 0 {
		return l.WarehouseID
	}
	return doc.WarehouseID
}

// UnitCost is the purchase cost of one base unit of the line.
func (l Line) UnitCost() decimal.Decimal {
	if l.Calc.BaseQuantity.IsZero() {
		return decimal.Zero
	}
	return l.Calc.NetTotal.Div(l.Calc.BaseQuantity).RoundBank(linecalc.Precision)
}

// Recalculate recomputes every line and the document totals. Cached totals
// are never trusted.
func (d *Document) Recalculate() {
	results := make([]linecalc.Result, len(d.Lines))
	for i := range d.Lines {
		d.Lines[i].LineNumber = i + 1
		d.Lines[i].Calc = linecalc.CalculateLine(d.Lines[i].Request(d.VatInclusive))
		results[i] = d.Lines[i].Calc
	}
	d.Totals = linecalc.Sum(results)
}

// BalanceDue is the unsettled part of a posted invoice.
func (d Document) BalanceDue() decimal.Decimal {
	return d.GrandTotal.Sub(d.PaidAmount)
}

// Settleable reports whether cash documents may settle d.
func (d Document) Settleable() bool {
	return d.Family == FamilyPurchaseInvoice || d.Family == FamilySalesInvoice
}

// Command addresses a mutation at a document the caller last read at Version.
type Command struct {
	ID      int64  `json:"id"`
	Version int64  `json:"version"`
	Actor   string `json:"actor"`
}

// Cashbox is a treasury location bound to one GL account.
type Cashbox struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	AccountID int64  `json:"account_id"`
	IsActive  bool   `json:"is_active"`
}

// AccountCodes names the system accounts used by the journal layouts.
type AccountCodes struct {
	Inventory        string
	VatInput         string
	Payable          string
	Receivable       string
	Sales            string
	VatOutput        string
	COGS             string
	RetainedEarnings string

	// AdjustmentIncome takes stock count surpluses, AdjustmentExpense shortages.
	AdjustmentIncome  string
	AdjustmentExpense string
}

// DefaultAccountCodes follows the default chart of accounts.
func DefaultAccountCodes() AccountCodes {
	return AccountCodes{
		Inventory:         "1131",
		VatInput:          "1141",
		Payable:           "2111",
		Receivable:        "1121",
		Sales:             "4111",
		VatOutput:         "2121",
		COGS:              "5111",
		RetainedEarnings:  "3121",
		AdjustmentIncome:  "4112",
		AdjustmentExpense: "5112",
	}
}

// FormatDocumentNumber renders <PREFIX>-yyyyMM-####.
func FormatDocumentNumber(f Family, date time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", f.Prefix(), date.Format("200601"), seq)
}

// SequencePeriod is the numbering bucket of a document date.
func SequencePeriod(date time.Time) string {
	return date.Format("200601")
}

var (
	ErrUnknownFamily     = shared.NewError(shared.KindValidation, "posting: unknown document family")
	ErrDocumentNotFound  = shared.NewError(shared.KindNotFound, "posting: document not found")
	ErrNotDraft          = shared.NewError(shared.KindInvariant, "posting: document is not a draft")
	ErrNotPosted         = shared.NewError(shared.KindInvariant, "posting: only posted documents can be cancelled")
	ErrNoLines           = shared.NewError(shared.KindValidation, "posting: document has no lines")
	ErrFamilyMismatch    = shared.NewError(shared.KindValidation, "posting: document belongs to another family")
	ErrInvalidLine       = shared.NewError(shared.KindValidation, "posting: invalid document line")
	ErrInvalidAmount     = shared.NewError(shared.KindValidation, "posting: amount must be positive")
	ErrPartyRequired     = shared.NewError(shared.KindValidation, "posting: supplier or customer required")
	ErrCashboxRequired   = shared.NewError(shared.KindValidation, "posting: cashbox required")
	ErrCashboxNotFound   = shared.NewError(shared.KindNotFound, "posting: cashbox not found")
	ErrCashboxInactive   = shared.NewError(shared.KindValidation, "posting: cashbox is inactive")
	ErrSameCashbox       = shared.NewError(shared.KindValidation, "posting: source and target cashbox must differ")
	ErrInsufficientCash  = shared.NewError(shared.KindValidation, "posting: cashbox balance is insufficient")
	ErrOverSettlement    = shared.NewError(shared.KindValidation, "posting: amount exceeds the invoice balance due")
	ErrInvalidSettlement = shared.NewError(shared.KindValidation, "posting: settled document must be a posted invoice")
	ErrSettled           = shared.NewError(shared.KindInvariant, "posting: invoice has payments, cancel them first")
	ErrDuplicateNumber   = shared.NewError(shared.KindConcurrency, "posting: document number already used")
	ErrActorRequired     = shared.NewError(shared.KindValidation, "posting: actor is required")
	ErrHookRejected      = shared.NewError(shared.KindValidation, "posting: rejected by posting hook")
	ErrNotQuotation      = shared.NewError(shared.KindValidation, "posting: family has no quotation workflow")
	ErrNotPostable       = shared.NewError(shared.KindInvariant, "posting: quotations are converted, not posted")
	ErrNotConfirmed      = shared.NewError(shared.KindInvariant, "posting: only confirmed quotations can be converted")
	ErrQuotationExpired  = shared.NewError(shared.KindValidation, "posting: quotation has expired")
	ErrInvalidOriginal   = shared.NewError(shared.KindValidation, "posting: original invoice must be a posted invoice of the same party")
	ErrOverReturn        = shared.NewError(shared.KindValidation, "posting: returned quantity exceeds what is left on the original invoice")
	ErrNothingToAdjust   = shared.NewError(shared.KindValidation, "posting: counted quantities match the books")
)
