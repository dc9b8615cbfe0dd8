package bill

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// reconcile fills summary fields the document left out and flags arithmetic
// that does not add up. It never rejects a record: summary figures are
// supplementary, the line items are what was extracted.
func reconcile(rec *Record, tol Tolerance) {
	rec.Warnings = []Warning{}
	warn := func(code, format string, args ...any) {
		rec.Warnings = append(rec.Warnings, Warning{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	sum := decimal.Zero
	for i, it := range rec.LineItems {
		total := money(it.Total)
		sum = sum.Add(total)
		if it.Quantity == nil || it.UnitPrice == nil {
			continue
		}
		expected := decimal.NewFromFloat(*it.Quantity).Mul(decimal.NewFromFloat(*it.UnitPrice)).Round(2)
		if !tol.Within(total, expected) {
			warn(WarnLineItemArithmetic, "line item %d (%s): quantity x unit price is %s, stated total is %s",
				i+1, it.Description, expected.StringFixed(2), total.StringFixed(2))
		}
	}

	if len(rec.LineItems) > 0 {
		if subtotal, ok := moneyPtr(rec.Subtotal); !ok {
			rec.Subtotal = amountPtr(sum)
		} else if !tol.Within(sum, subtotal) {
			warn(WarnSubtotalMismatch, "line items add up to %s, stated subtotal is %s",
				sum.StringFixed(2), subtotal.StringFixed(2))
		}
	}

	subtotal, hasSubtotal := moneyPtr(rec.Subtotal)
	tax, _ := moneyPtr(rec.Tax)
	if rec.GrandTotal == nil && hasSubtotal {
		rec.GrandTotal = amountPtr(subtotal.Add(tax))
	}
	if grand, ok := moneyPtr(rec.GrandTotal); ok && hasSubtotal {
		expected := subtotal.Add(tax)
		switch {
		case grand.Equal(expected):
		case tol.Within(grand, expected):
			warn(WarnGrandTotalRounding, "grand total %s differs from subtotal plus tax %s by %s",
				grand.StringFixed(2), expected.StringFixed(2), grand.Sub(expected).Abs().StringFixed(2))
		default:
			warn(WarnGrandTotalMismatch, "grand total %s does not match subtotal plus tax %s",
				grand.StringFixed(2), expected.StringFixed(2))
		}
	}

	rec.ItemCount = len(rec.LineItems)
}
