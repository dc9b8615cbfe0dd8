package bill

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

type summaryKind int

const (
	notSummary summaryKind = iota
	summarySubtotal
	summaryTax
	summaryGrandTotal
	summaryCarried
)

// summaryPhrases are whole row labels, reduced to lowercase words, that name
// an aggregate rather than a charge
var summaryPhrases = map[string]summaryKind{
	"sub total":    summarySubtotal,
	"subtotal":     summarySubtotal,
	"net subtotal": summarySubtotal,

	"total":                summaryGrandTotal,
	"grand total":          summaryGrandTotal,
	"invoice total":        summaryGrandTotal,
	"bill total":           summaryGrandTotal,
	"bill amount":          summaryGrandTotal,
	"total bill amount":    summaryGrandTotal,
	"net total":            summaryGrandTotal,
	"page total":           summaryGrandTotal,
	"total amount":         summaryGrandTotal,
	"total due":            summaryGrandTotal,
	"total payable":        summaryGrandTotal,
	"total amount due":     summaryGrandTotal,
	"total amount payable": summaryGrandTotal,
	"amount due":           summaryGrandTotal,
	"amount payable":       summaryGrandTotal,
	"balance due":          summaryGrandTotal,
	"net amount":           summaryGrandTotal,
	"net payable":          summaryGrandTotal,
	"net amount payable":   summaryGrandTotal,

	"tax":         summaryTax,
	"taxes":       summaryTax,
	"total tax":   summaryTax,
	"tax amount":  summaryTax,
	"sales tax":   summaryTax,
	"service tax": summaryTax,
	"output tax":  summaryTax,
	"vat":         summaryTax,
	"vat amount":  summaryTax,
	"gst":         summaryTax,
	"gst amount":  summaryTax,
	"cgst":        summaryTax,
	"sgst":        summaryTax,
	"igst":        summaryTax,
	"utgst":       summaryTax,
	"hst":         summaryTax,
	"pst":         summaryTax,

	"carried forward":         summaryCarried,
	"brought forward":         summaryCarried,
	"carried over":            summaryCarried,
	"brought over":            summaryCarried,
	"balance carried forward": summaryCarried,
	"balance brought forward": summaryCarried,
	"c f":                     summaryCarried,
	"b f":                     summaryCarried,
}

var (
	nonLetters = regexp.MustCompile(`[^a-z]+`)
	nonAlnum   = regexp.MustCompile(`[^a-z0-9]+`)
	// "Less: Discount total", "Add GST"
	labelPrefix = regexp.MustCompile(`^(?:less|add|plus) `)
	// "Total (incl. VAT)", "GST @ 18%", "Total Rs."
	labelSuffix = regexp.MustCompile(`(?: (?:incl|including|inclusive of|excl|excluding|exclusive of) (?:all )?(?:tax|taxes|vat|gst))?(?: (?:at|on|rs|inr|usd|eur|gbp))*$`)
)

// classifySummary decides whether a row's whole description names an
// aggregate, and which one. Digits and punctuation are ignored, so rates
// such as "@ 5%" do not matter.
func classifySummary(description string) summaryKind {
	label := strings.TrimSpace(nonLetters.ReplaceAllString(strings.ToLower(description), " "))
	label = labelPrefix.ReplaceAllString(label, "")
	label = labelSuffix.ReplaceAllString(label, "")
	return summaryPhrases[label]
}

// removeSummaryRows drops rows that are labelled like an aggregate and whose
// amount repeats one. Totals, subtotals and carry-overs must match the sum of
// the genuine rows (with or without tax), a stated total, or the running sum
// above them. Tax rows must match the stated tax or the gap between a total
// and the subtotal. Every figure comes from the record as given, before any
// empty field is filled from a removed row.
func removeSummaryRows(rec *Record, tol Tolerance) int {
	kinds := make([]summaryKind, len(rec.LineItems))
	base, all := decimal.Zero, decimal.Zero
	genuine := 0
	var taxRows, grandRows []decimal.Decimal
	for i, it := range rec.LineItems {
		total := money(it.Total)
		all = all.Add(total)
		kinds[i] = classifySummary(it.Description)
		switch kinds[i] {
		case notSummary:
			base = base.Add(total)
			genuine++
		case summaryTax:
			taxRows = append(taxRows, total)
		case summaryGrandTotal:
			grandRows = append(grandRows, total)
		}
	}
	if genuine == 0 || genuine == len(rec.LineItems) {
		return 0
	}

	subtotal, hasSubtotal := moneyPtr(rec.Subtotal)
	tax, hasTax := moneyPtr(rec.Tax)
	grand, hasGrand := moneyPtr(rec.GrandTotal)

	// A subtotal that already covers every row counts them all as charges
	if hasSubtotal && subtotal.Equal(all) {
		return 0
	}

	subs := []decimal.Decimal{base}
	if hasSubtotal {
		subs = append(subs, subtotal)
	}

	taxFigures := append([]decimal.Decimal{}, taxRows...)
	if len(taxRows) > 1 {
		taxFigures = append(taxFigures, sum(taxRows))
	}
	if hasTax {
		taxFigures = append(taxFigures, tax)
	}

	totals := append([]decimal.Decimal{}, subs...)
	if hasGrand {
		totals = append(totals, grand)
	}
	for _, s := range subs {
		for _, t := range taxFigures {
			totals = append(totals, s.Add(t))
		}
	}

	var taxes []decimal.Decimal
	if hasTax {
		taxes = append(taxes, tax)
	}
	grands := append([]decimal.Decimal{}, grandRows...)
	// A grand total that only restates subtotal plus tax says nothing new
	// about the tax
	if hasGrand && !(hasSubtotal && grand.Equal(subtotal.Add(tax))) {
		grands = append(grands, grand)
	}
	for _, g := range grands {
		for _, s := range subs {
			if g.GreaterThan(s) {
				taxes = append(taxes, g.Sub(s))
			}
		}
	}
	// CGST and SGST rows that only add up to the tax together
	taxGroup := len(taxRows) > 1 && matchesAny(sum(taxRows), taxes, tol)

	var (
		kept               = make([]LineItem, 0, genuine)
		running            = decimal.Zero
		removed            int
		removedTax         = decimal.Zero
		anyTaxRemoved      bool
		lastSub, lastGrand *decimal.Decimal
	)
	for i, it := range rec.LineItems {
		total := money(it.Total)
		var drop bool
		switch kinds[i] {
		case notSummary:
			kept = append(kept, it)
			running = running.Add(total)
			continue
		case summaryTax:
			drop = taxGroup || matchesAny(total, taxes, tol)
		default:
			drop = matchesAny(total, totals, tol) || (running.IsPositive() && tol.Within(total, running))
		}
		if !drop {
			kept = append(kept, it)
			continue
		}

		switch kinds[i] {
		case summarySubtotal:
			lastSub = &total
		case summaryTax:
			removedTax = removedTax.Add(total)
			anyTaxRemoved = true
		case summaryGrandTotal:
			lastGrand = &total
		}
		removed++
	}

	if rec.Subtotal == nil && lastSub != nil {
		rec.Subtotal = amountPtr(*lastSub)
	}
	if rec.Tax == nil && anyTaxRemoved {
		rec.Tax = amountPtr(removedTax)
	}
	if rec.GrandTotal == nil && lastGrand != nil {
		rec.GrandTotal = amountPtr(*lastGrand)
	}
	rec.LineItems = kept
	return removed
}

func sum(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

func matchesAny(amount decimal.Decimal, candidates []decimal.Decimal, tol Tolerance) bool {
	for _, c := range candidates {
		if tol.Within(amount, c) {
			return true
		}
	}
	return false
}

// collapseDuplicates keeps the first of any rows sharing a description and
// a total to the cent
func collapseDuplicates(rec *Record) int {
	seen := make(map[string]struct{}, len(rec.LineItems))
	kept := make([]LineItem, 0, len(rec.LineItems))
	for _, it := range rec.LineItems {
		key := strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToLower(it.Description), " ")) +
			"|" + money(it.Total).StringFixed(2)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, it)
	}
	removed := len(rec.LineItems) - len(kept)
	rec.LineItems = kept
	return removed
}
