package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PeriodToken is the MM/YYYY marker a monthly bill title carries.
func PeriodToken(t time.Time) string {
	return fmt.Sprintf("%02d/%d", int(t.Month()), t.Year())
}

// DueDate is day dueDay of t's month at 23:59:59 in t's location.
func DueDate(t time.Time, dueDay int) time.Time {
	return time.Date(t.Year(), t.Month(), dueDay, 23, 59, 59, 0, t.Location())
}

func monthlyTitle(token string) string {
	return "Monthly care bill " + token
}

// formatMoney renders an amount with thousands separators, e.g. 12,500,000
// or 1,234.50.
func formatMoney(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac := s[:len(s)-3], s[len(s)-2:]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if frac != "00" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
