package shared

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders a money amount with thousands separators and two decimals,
// used in log lines and audit metadata. The digits come from the decimal itself
// so large amounts keep every cent.
func FormatAmount(d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")
	if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
		return sign + amountPrinter.Sprintf("%d", n) + "." + frac
	}
	return sign + groupThousands(whole) + "." + frac
}

// groupThousands separates digits beyond the int64 range.
func groupThousands(digits string) string {
	var b strings.Builder
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
