package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// FormatAmount renders a money value with thousands separators and two
// decimals, e.g. 9180000 -> "9,180,000.00".
func FormatAmount(v decimal.Decimal) string {
	fixed := v.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if v.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// FormatInvoiceNumber derives a stable human-readable number from the
// invoice id and its issue date.
func FormatInvoiceNumber(id snowflake.ID, issuedAt time.Time) string {
	return fmt.Sprintf("TUI-%s-%s", issuedAt.UTC().Format("20060102"), id.String())
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(dateLayout)
}
