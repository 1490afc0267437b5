package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var trailingSeqRe = regexp.MustCompile(`(\d+)$`)

const periodLayout = "02.01.2006"

// InvoiceNumber renders PREFIX-YEAR-00001.
func InvoiceNumber(prefix string, year int, seq int64) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", fmt.Errorf("invoice number prefix is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}
	return fmt.Sprintf("%s-%d-%05d", prefix, year, seq), nil
}

// NextSequence returns the sequence following last, or 1 when last carries none.
func NextSequence(last string) int64 {
	match := trailingSeqRe.FindStringSubmatch(strings.TrimSpace(last))
	if len(match) != 2 {
		return 1
	}
	seq, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 1
	}
	return seq + 1
}

// BillingPeriod renders "dd.mm.yyyy - dd.mm.yyyy".
func BillingPeriod(start, end time.Time) string {
	return start.Format(periodLayout) + " - " + end.Format(periodLayout)
}

// Date renders a German short date.
func Date(t time.Time) string {
	return t.Format(periodLayout)
}

// Money renders an amount in German notation, e.g. "1.234,56 EUR".
func Money(amount decimal.Decimal, currency string) string {
	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	out := sign + grouped.String() + "," + frac
	if currency != "" {
		out += " " + currency
	}
	return out
}
