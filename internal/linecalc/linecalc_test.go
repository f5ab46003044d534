package linecalc

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	require.Truef(t, d(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

func TestCalculateLineExclusiveVAT(t *testing.T) {
	res := CalculateLine(Request{
		Quantity:         d("10"),
		UnitPrice:        d("100"),
		DiscountPercent:  d("10"),
		VatRate:          d("15"),
		ConversionFactor: d("1"),
		CostPrice:        d("60"),
	})

	requireDecimal(t, "10", res.BaseQuantity, "base quantity")
	requireDecimal(t, "1000", res.SubTotal, "sub total")
	requireDecimal(t, "100", res.DiscountAmount, "discount")
	requireDecimal(t, "900", res.NetTotal, "net")
	requireDecimal(t, "135", res.VatAmount, "vat")
	requireDecimal(t, "1035", res.TotalWithVat, "total")
	requireDecimal(t, "60", res.CostPerUnit, "cost per unit")
	requireDecimal(t, "600", res.CostTotal, "cost total")
	requireDecimal(t, "90", res.NetUnitPrice, "net unit price")
	requireDecimal(t, "30", res.UnitProfit, "unit profit")
	requireDecimal(t, "300", res.TotalProfit, "total profit")
	requireDecimal(t, "33.33", res.ProfitMarginPercent, "margin")
}

func TestCalculateLineInclusiveVAT(t *testing.T) {
	res := CalculateLine(Request{
		Quantity:         d("1"),
		UnitPrice:        d("115"),
		VatRate:          d("15"),
		ConversionFactor: d("1"),
		VatInclusive:     true,
	})

	requireDecimal(t, "15", res.VatAmount, "vat")
	requireDecimal(t, "100", res.NetTotal, "net")
	requireDecimal(t, "115", res.TotalWithVat, "total")
}

func TestCalculateLineInclusiveWithZeroRateActsExclusive(t *testing.T) {
	res := CalculateLine(Request{Quantity: d("2"), UnitPrice: d("50"), VatInclusive: true})
	requireDecimal(t, "100", res.NetTotal, "net")
	requireDecimal(t, "0", res.VatAmount, "vat")
	requireDecimal(t, "100", res.TotalWithVat, "total")
}

func TestCalculateLineConversionFactorDefaultsToOne(t *testing.T) {
	for _, factor := range []string{"0", "-3"} {
		res := CalculateLine(Request{
			Quantity:         d("5"),
			UnitPrice:        d("10"),
			ConversionFactor: d(factor),
			CostPrice:        d("4"),
		})
		requireDecimal(t, "5", res.BaseQuantity, "base quantity")
		requireDecimal(t, "4", res.CostPerUnit, "cost per unit")
	}
}

func TestCalculateLineConversionFactor(t *testing.T) {
	res := CalculateLine(Request{
		Quantity:         d("2"),
		UnitPrice:        d("100"),
		ConversionFactor: d("12"),
		CostPrice:        d("5"),
	})

	requireDecimal(t, "24", res.BaseQuantity, "base quantity")
	requireDecimal(t, "60", res.CostPerUnit, "cost per unit")
	requireDecimal(t, "120", res.CostTotal, "cost total")
	requireDecimal(t, "40", res.UnitProfit, "unit profit")
	requireDecimal(t, "80", res.TotalProfit, "total profit")
}

func TestCalculateLineProfitCases(t *testing.T) {
	cases := []struct {
		name     string
		req      Request
		profit   string
		margin   string
		netPrice string
	}{
		{
			name:     "no discount",
			req:      Request{Quantity: d("10"), UnitPrice: d("50"), VatRate: d("15"), ConversionFactor: d("1"), CostPrice: d("30")},
			profit:   "200",
			margin:   "40",
			netPrice: "50",
		},
		{
			name:     "with discount",
			req:      Request{Quantity: d("4"), UnitPrice: d("100"), DiscountPercent: d("20"), ConversionFactor: d("1"), CostPrice: d("60")},
			profit:   "80",
			margin:   "25",
			netPrice: "80",
		},
		{
			name:     "zero cost",
			req:      Request{Quantity: d("3"), UnitPrice: d("100"), ConversionFactor: d("1")},
			profit:   "300",
			margin:   "100",
			netPrice: "100",
		},
		{
			name:     "below cost",
			req:      Request{Quantity: d("1"), UnitPrice: d("40"), ConversionFactor: d("1"), CostPrice: d("60")},
			profit:   "-20",
			margin:   "-50",
			netPrice: "40",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := CalculateLine(tc.req)
			requireDecimal(t, tc.profit, res.TotalProfit, "total profit")
			requireDecimal(t, tc.margin, res.ProfitMarginPercent, "margin")
			requireDecimal(t, tc.netPrice, res.NetUnitPrice, "net unit price")
		})
	}
}

func TestCalculateLineFullDiscountGuardsMargin(t *testing.T) {
	res := CalculateLine(Request{
		Quantity:         d("5"),
		UnitPrice:        d("200"),
		DiscountPercent:  d("100"),
		VatRate:          d("15"),
		ConversionFactor: d("1"),
		CostPrice:        d("100"),
	})

	requireDecimal(t, "1000", res.DiscountAmount, "discount")
	requireDecimal(t, "0", res.NetTotal, "net")
	requireDecimal(t, "0", res.VatAmount, "vat")
	requireDecimal(t, "0", res.NetUnitPrice, "net unit price")
	requireDecimal(t, "0", res.ProfitMarginPercent, "margin")
	require.True(t, res.TotalProfit.LessThanOrEqual(decimal.Zero))
}

func TestCalculateLineDiscountAboveHundredFloorsUnitPrice(t *testing.T) {
	res := CalculateLine(Request{Quantity: d("1"), UnitPrice: d("10"), DiscountPercent: d("150"), ConversionFactor: d("1")})
	requireDecimal(t, "0", res.NetUnitPrice, "net unit price")
}

func TestCalculateLineRoundsToFourDecimals(t *testing.T) {
	res := CalculateLine(Request{
		Quantity:         d("3"),
		UnitPrice:        d("33.3333"),
		DiscountPercent:  d("7.5"),
		VatRate:          d("15"),
		ConversionFactor: d("1"),
		CostPrice:        d("20"),
	})

	requireDecimal(t, "99.9999", res.SubTotal, "sub total")
	requireDecimal(t, "7.5", res.DiscountAmount, "discount")
	requireDecimal(t, "92.4999", res.NetTotal, "net")
	requireDecimal(t, "13.875", res.VatAmount, "vat")
	require.LessOrEqual(t, -res.VatAmount.Exponent(), int32(4))
}

func TestCalculateLineUsesHalfEvenRounding(t *testing.T) {
	// 0.00005 sits exactly on the midpoint at the fifth decimal.
	res := CalculateLine(Request{Quantity: d("1"), UnitPrice: d("0.00005"), ConversionFactor: d("1")})
	requireDecimal(t, "0", res.SubTotal, "sub total")

	res = CalculateLine(Request{Quantity: d("1"), UnitPrice: d("0.00015"), ConversionFactor: d("1")})
	requireDecimal(t, "0.0002", res.SubTotal, "sub total")
}

func TestCalculateTotalsSumsRoundedLines(t *testing.T) {
	lines := []Request{
		{Quantity: d("10"), UnitPrice: d("100"), DiscountPercent: d("10"), VatRate: d("15"), ConversionFactor: d("1"), CostPrice: d("60")},
		{Quantity: d("1"), UnitPrice: d("115"), VatRate: d("15"), ConversionFactor: d("1"), VatInclusive: true},
	}

	totals := CalculateTotals(lines)
	requireDecimal(t, "1115", totals.SubTotal, "sub total")
	requireDecimal(t, "100", totals.DiscountTotal, "discount")
	requireDecimal(t, "1000", totals.NetTotal, "net")
	requireDecimal(t, "150", totals.VatTotal, "vat")
	requireDecimal(t, "1150", totals.GrandTotal, "grand total")
	requireDecimal(t, "600", totals.CostTotal, "cost total")

	var results []Result
	for _, l := range lines {
		results = append(results, CalculateLine(l))
	}
	require.Equal(t, Sum(results), totals)
}

func TestCalculateTotalsEmpty(t *testing.T) {
	totals := CalculateTotals(nil)
	require.True(t, totals.GrandTotal.IsZero())
	require.True(t, totals.NetTotal.IsZero())
}

func TestConvertQuantityAndPrice(t *testing.T) {
	requireDecimal(t, "60", ConvertQuantity(d("5"), d("12")), "qty")
	requireDecimal(t, "3", ConvertQuantity(d("3"), d("1")), "qty")
	requireDecimal(t, "10", ConvertQuantity(d("2.5"), d("4")), "qty")
	requireDecimal(t, "7", ConvertQuantity(d("7"), d("0")), "qty")

	requireDecimal(t, "10", ConvertPrice(d("120"), d("12")), "price")
	requireDecimal(t, "100", ConvertPrice(d("100"), d("1")), "price")
	requireDecimal(t, "100", ConvertPrice(d("100"), d("0")), "price")
	requireDecimal(t, "33.3333", ConvertPrice(d("100"), d("3")), "price")
}
