package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func TypeLabel(t Type) string {
	switch t {
	case TypePercent:
		return "Prozent-Rabatt"
	case TypeFixedAmount:
		return "Fixbetrag-Rabatt"
	case TypeTrialExtension:
		return "Trial-Verlängerung"
	default:
		return string(t)
	}
}

func (v Voucher) TypeLabel() string {
	return TypeLabel(v.Type)
}

func (v Voucher) StatusLabel(now time.Time) string {
	switch {
	case !v.IsActive:
		return "Inaktiv"
	case v.IsExpired(now):
		return "Abgelaufen"
	case v.IsExhausted():
		return "Erschöpft"
	default:
		return "Aktiv"
	}
}

func (v Voucher) DurationLabel() string {
	if v.Type == TypeTrialExtension {
		return "Einmalig"
	}
	if v.DurationMonths == 1 {
		return "1 Monat"
	}
	return fmt.Sprintf("%d Monate", v.DurationMonths)
}

func (v Voucher) FormattedDiscount(currency string) string {
	return formatDiscount(v.Type, v.DiscountPercent.Decimal, v.DiscountAmount.Decimal, v.TrialExtensionDays, currency)
}

func (r Redemption) FormattedDiscount(currency string) string {
	return formatDiscount(r.VoucherType, r.DiscountPercent.Decimal, r.DiscountAmount.Decimal, r.TrialExtensionDays, currency)
}

func formatDiscount(t Type, percent, amount decimal.Decimal, days *int, currency string) string {
	switch t {
	case TypePercent:
		return percent.StringFixed(0) + "%"
	case TypeFixedAmount:
		return amount.StringFixed(2) + " " + currency
	case TypeTrialExtension:
		n := 0
		if days != nil {
			n = *days
		}
		return fmt.Sprintf("+%d Tage Trial", n)
	default:
		return "-"
	}
}
