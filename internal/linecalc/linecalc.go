// Package linecalc computes invoice line and invoice totals. Every monetary
// value is rounded once, at the line level, to four decimals using half-even
// rounding; the profit margin percentage is rounded to two decimals. Invoice
// totals are sums of already-rounded line results.
package linecalc

import "github.com/shopspring/decimal"

// Precision is the number of decimals kept for amounts and quantities.
const Precision int32 = 4

// MarginPrecision is the number of decimals kept for the profit margin percentage.
const MarginPrecision int32 = 2

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Request describes one invoice line.
type Request struct {
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	DiscountPercent  decimal.Decimal `json:"discount_percent"`
	VatRate          decimal.Decimal `json:"vat_rate"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	CostPrice        decimal.Decimal `json:"cost_price"`
	VatInclusive     bool            `json:"vat_inclusive"`
}

// Result holds the computed figures of one line.
type Result struct {
	BaseQuantity        decimal.Decimal `json:"base_quantity"`
	SubTotal            decimal.Decimal `json:"sub_total"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	NetTotal            decimal.Decimal `json:"net_total"`
	VatAmount           decimal.Decimal `json:"vat_amount"`
	TotalWithVat        decimal.Decimal `json:"total_with_vat"`
	CostPerUnit         decimal.Decimal `json:"cost_per_unit"`
	CostTotal           decimal.Decimal `json:"cost_total"`
	NetUnitPrice        decimal.Decimal `json:"net_unit_price"`
	UnitProfit          decimal.Decimal `json:"unit_profit"`
	TotalProfit         decimal.Decimal `json:"total_profit"`
	ProfitMarginPercent decimal.Decimal `json:"profit_margin_percent"`
}

// Totals aggregates line results of a document.
type Totals struct {
	SubTotal      decimal.Decimal `json:"sub_total"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	NetTotal      decimal.Decimal `json:"net_total"`
	VatTotal      decimal.Decimal `json:"vat_total"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	CostTotal     decimal.Decimal `json:"cost_total"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Precision)
}

// NormalizeFactor treats a non-positive conversion factor as 1.
func NormalizeFactor(factor decimal.Decimal) decimal.Decimal {
	if factor.Sign() <= 0 {
		return one
	}
	return factor
}

// CalculateLine computes the figures of a single line.
func CalculateLine(req Request) Result {
	factor := NormalizeFactor(req.ConversionFactor)
	qty := req.Quantity

	var res Result
	res.BaseQuantity = round(qty.Mul(factor))
	res.SubTotal = round(qty.Mul(req.UnitPrice))
	res.DiscountAmount = round(res.SubTotal.Mul(req.DiscountPercent).Div(hundred))

	if req.VatInclusive && req.VatRate.Sign() > 0 {
		inclusive := res.SubTotal.Sub(res.DiscountAmount)
		res.VatAmount = round(inclusive.Mul(req.VatRate).Div(hundred.Add(req.VatRate)))
		res.NetTotal = inclusive.Sub(res.VatAmount)
		res.TotalWithVat = inclusive
	} else {
		res.NetTotal = res.SubTotal.Sub(res.DiscountAmount)
		res.VatAmount = round(res.NetTotal.Mul(req.VatRate).Div(hundred))
		res.TotalWithVat = res.NetTotal.Add(res.VatAmount)
	}

	res.CostPerUnit = round(req.CostPrice.Mul(factor))
	res.CostTotal = round(res.BaseQuantity.Mul(req.CostPrice))

	discountFactor := one.Sub(req.DiscountPercent.Div(hundred))
	if discountFactor.IsNegative() {
		discountFactor = decimal.Zero
	}
	res.NetUnitPrice = round(req.UnitPrice.Mul(discountFactor))
	res.UnitProfit = round(res.NetUnitPrice.Sub(res.CostPerUnit))
	res.TotalProfit = round(res.UnitProfit.Mul(qty))
	if !res.NetTotal.IsZero() {
		res.ProfitMarginPercent = res.TotalProfit.Div(res.NetTotal).Mul(hundred).RoundBank(MarginPrecision)
	}
	return res
}

// CalculateTotals computes every line and sums the rounded results.
func CalculateTotals(lines []Request) Totals {
	results := make([]Result, 0, len(lines))
	for _, line := range lines {
		results = append(results, CalculateLine(line))
	}
	return Sum(results)
}

// Sum aggregates already computed line results.
func Sum(results []Result) Totals {
	var t Totals
	for _, r := range results {
		t.SubTotal = t.SubTotal.Add(r.SubTotal)
		t.DiscountTotal = t.DiscountTotal.Add(r.DiscountAmount)
		t.NetTotal = t.NetTotal.Add(r.NetTotal)
		t.VatTotal = t.VatTotal.Add(r.VatAmount)
		t.GrandTotal = t.GrandTotal.Add(r.TotalWithVat)
		t.CostTotal = t.CostTotal.Add(r.CostTotal)
		t.TotalProfit = t.TotalProfit.Add(r.TotalProfit)
	}
	return t
}

// ConvertQuantity converts a quantity in a sales unit into base units.
// A non-positive factor leaves the quantity unchanged.
func ConvertQuantity(quantity, factor decimal.Decimal) decimal.Decimal {
	if factor.Sign() <= 0 {
		return quantity
	}
	return round(quantity.Mul(factor))
}

// ConvertPrice converts a price per sales unit into a price per base unit.
// A non-positive factor leaves the price unchanged.
func ConvertPrice(price, factor decimal.Decimal) decimal.Decimal {
	if factor.Sign() <= 0 {
		return price
	}
	return round(price.Div(factor))
}
