package bill

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// Key synonyms models tend to produce, mapped to the schema's names
var (
	recordSynonyms = map[string]string{
		"vendor_name":      "vendor",
		"merchant":         "vendor",
		"merchant_name":    "vendor",
		"store":            "vendor",
		"store_name":       "vendor",
		"seller":           "vendor",
		"date":             "bill_date",
		"invoice_date":     "bill_date",
		"transaction_date": "bill_date",
		"currency_code":    "currency",
		"items":            "line_items",
		"bill_items":       "line_items",
		"lineitems":        "line_items",
		"sub_total":        "subtotal",
		"tax_amount":       "tax",
		"total_tax":        "tax",
		"total":            "grand_total",
		"total_amount":     "grand_total",
		"amount_due":       "grand_total",
		"grandtotal":       "grand_total",
	}
	itemSynonyms = map[string]string{
		"item_name":        "description",
		"name":             "description",
		"item":             "description",
		"item_description": "description",
		"item_amount":      "total",
		"amount":           "total",
		"line_total":       "total",
		"item_rate":        "unit_price",
		"rate":             "unit_price",
		"price":            "unit_price",
		"unitprice":        "unit_price",
		"item_quantity":    "quantity",
		"qty":              "quantity",
		"page_no":          "page",
		"page_number":      "page",
	}
	recordKeys = []string{"vendor", "bill_date", "currency", "line_items", "subtotal", "tax", "grand_total"}
	itemKeys   = []string{"description", "quantity", "unit_price", "total", "page"}
)

var (
	currencyCode  = regexp.MustCompile(`^[A-Z]{3}$`)
	decimalComma  = regexp.MustCompile(`^\d+,\d{1,2}$`)
	currencySigns = map[string]string{
		"$":   "USD",
		"US$": "USD",
		"€":   "EUR",
		"£":   "GBP",
		"₹":   "INR",
		"RS":  "INR",
		"RS.": "INR",
		"¥":   "JPY",
		"A$":  "AUD",
		"C$":  "CAD",
		"R$":  "BRL",
	}
	dateLayouts = []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006/01/02",
		"2006.01.02",
		"01/02/2006",
		"02/01/2006",
		"02-01-2006",
		"02.01.2006",
		"01/02/06",
		"2 Jan 2006",
		"02 Jan 2006",
		"02-Jan-2006",
		"2-Jan-2006",
		"Jan 2, 2006",
		"January 2, 2006",
		"2 January 2006",
		"Mon, 2 Jan 2006",
	}
)

// coercer turns the loosely typed map produced by parseResponse into a map
// shaped exactly like OutputSchema. Anything that cannot be repaired is
// recorded as a problem; repairs are kept for logging.
type coercer struct {
	problems []string
	repairs  []string
}

func (c *coercer) problem(path, format string, args ...any) {
	c.problems = append(c.problems, path+": "+fmt.Sprintf(format, args...))
}

func (c *coercer) repair(path, format string, args ...any) {
	c.repairs = append(c.repairs, path+": "+fmt.Sprintf(format, args...))
}

func (c *coercer) record(m map[string]any) map[string]any {
	flattenPages(m)
	renameKeys(m, recordSynonyms)
	c.dropUnknown("", m, recordKeys)

	out := make(map[string]any, len(recordKeys))
	for _, k := range recordKeys {
		if _, ok := m[k]; !ok && k != "line_items" {
			c.repair("/"+k, "omitted, set to null")
		}
	}

	vendor, err := toText(m["vendor"])
	if err != nil {
		c.problem("/vendor", "%v", err)
	}
	out["vendor"] = vendor

	date, err := toDate(m["bill_date"])
	if err != nil {
		c.problem("/bill_date", "%v", err)
	}
	out["bill_date"] = date

	out["currency"] = c.currency(m["currency"])

	for _, k := range []string{"subtotal", "tax", "grand_total"} {
		n, err := toNumber(m[k])
		if err != nil {
			c.problem("/"+k, "%v", err)
		}
		out[k] = n
	}

	raw, ok := m["line_items"]
	switch items := raw.(type) {
	case nil:
		if !ok {
			c.problem("/line_items", "required field is missing")
		}
		out["line_items"] = []any{}
	case []any:
		coerced := make([]any, 0, len(items))
		for i, it := range items {
			if item := c.item(fmt.Sprintf("/line_items/%d", i), it); item != nil {
				coerced = append(coerced, item)
			}
		}
		out["line_items"] = coerced
	default:
		c.problem("/line_items", "expected an array, got %T", raw)
	}

	return out
}

func (c *coercer) item(path string, v any) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		c.problem(path, "expected an object, got %T", v)
		return nil
	}
	renameKeys(m, itemSynonyms)
	c.dropUnknown(path, m, itemKeys)

	out := make(map[string]any, len(itemKeys))

	desc, err := toText(m["description"])
	switch {
	case err != nil:
		c.problem(path+"/description", "%v", err)
	case desc == nil:
		c.problem(path+"/description", "required field is missing")
	}
	out["description"] = desc

	qty, err := toNumber(m["quantity"])
	if err != nil {
		c.problem(path+"/quantity", "%v", err)
	}
	if qty != nil && *qty == 0 {
		c.repair(path+"/quantity", "zero quantity set to null")
		qty = nil
	}
	out["quantity"] = qty

	price, err := toNumber(m["unit_price"])
	if err != nil {
		c.problem(path+"/unit_price", "%v", err)
	}
	out["unit_price"] = price

	total, err := toNumber(m["total"])
	if err != nil {
		c.problem(path+"/total", "%v", err)
	} else if total == nil {
		if qty != nil && price != nil {
			t := decimal.NewFromFloat(*qty).Mul(decimal.NewFromFloat(*price)).Round(2).InexactFloat64()
			total = &t
			c.repair(path+"/total", "computed from quantity and unit_price")
		} else {
			c.problem(path+"/total", "required field is missing")
		}
	}
	out["total"] = total

	page, err := toPage(m["page"])
	if err != nil {
		c.repair(path+"/page", "dropped unreadable page %v", m["page"])
	}
	out["page"] = page

	return out
}

func (c *coercer) currency(v any) *string {
	s, err := toText(v)
	if err != nil || s == nil {
		return nil
	}
	code := strings.ToUpper(*s)
	if currencyCode.MatchString(code) {
		return &code
	}
	if mapped, ok := currencySigns[code]; ok {
		return &mapped
	}
	c.repair("/currency", "unrecognized currency %q set to null", *s)
	return nil
}

func (c *coercer) dropUnknown(path string, m map[string]any, allowed []string) {
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if !slices.Contains(allowed, k) {
			delete(m, k)
			c.repair(path+"/"+k, "unknown field dropped")
		}
	}
}

// renameKeys rewrites synonym keys to their canonical name, never
// overwriting a canonical key the model already supplied
func renameKeys(m map[string]any, synonyms map[string]string) {
	for _, k := range slices.Sorted(maps.Keys(m)) {
		lower := strings.ToLower(strings.TrimSpace(k))
		target, ok := synonyms[lower]
		if !ok {
			target = lower
		}
		if target == k {
			continue
		}
		if _, exists := m[target]; !exists {
			m[target] = m[k]
		}
		delete(m, k)
	}
}

// flattenPages accepts the page-wise response shape
// {"pagewise_line_items": [{"page_no": "1", "bill_items": [...]}]}
// and folds it into line_items, tagging each item with its page.
func flattenPages(m map[string]any) {
	pages, ok := m["pagewise_line_items"].([]any)
	if !ok {
		return
	}
	delete(m, "pagewise_line_items")
	delete(m, "total_item_count")
	if _, exists := m["line_items"]; exists {
		return
	}

	flat := make([]any, 0)
	for _, p := range pages {
		page, ok := p.(map[string]any)
		if !ok {
			continue
		}
		pageNo := page["page_no"]
		var items []any
		for _, key := range []string{"bill_items", "line_items", "items"} {
			if list, ok := page[key].([]any); ok {
				items = list
				break
			}
		}
		for _, it := range items {
			if obj, ok := it.(map[string]any); ok {
				if _, has := obj["page"]; !has && pageNo != nil {
					obj["page"] = pageNo
				}
			}
			flat = append(flat, it)
		}
	}
	m["line_items"] = flat
}

func isNullish(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "nil", "none", "n/a", "na", "-", "--", "unknown":
		return true
	}
	return false
}

func toText(v any) (*string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		s := strings.Join(strings.Fields(t), " ")
		if isNullish(s) {
			return nil, nil
		}
		return &s, nil
	case json.Number:
		s := t.String()
		return &s, nil
	default:
		return nil, fmt.Errorf("expected a string, got %T", v)
	}
}

func toNumber(v any) (*float64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as a number", t.String())
		}
		return &f, nil
	case float64:
		return &t, nil
	case string:
		if isNullish(t) {
			return nil, nil
		}
		f, err := parseAmount(t)
		if err != nil {
			return nil, err
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("expected a number, got %T", v)
	}
}

// parseAmount reads numbers the way they are printed on bills:
// "45.50", "$1,234.50", "1.234,50 EUR", "(5.00)", "Rs. 100"
func parseAmount(s string) (float64, error) {
	orig := s
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}

	first := strings.IndexFunc(s, unicode.IsDigit)
	if first == -1 {
		return 0, fmt.Errorf("cannot parse %q as a number", orig)
	}
	last := strings.LastIndexFunc(s, unicode.IsDigit)
	if strings.Contains(s[:first], "-") {
		neg = true
	}

	var b strings.Builder
	for _, r := range s[first : last+1] {
		if unicode.IsDigit(r) || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	clean := b.String()

	if strings.Contains(clean, ",") {
		switch {
		case strings.Contains(clean, "."):
			if strings.LastIndex(clean, ",") > strings.LastIndex(clean, ".") {
				clean = strings.ReplaceAll(clean, ".", "")
				clean = strings.Replace(clean, ",", ".", 1)
			} else {
				clean = strings.ReplaceAll(clean, ",", "")
			}
		case decimalComma.MatchString(clean):
			clean = strings.Replace(clean, ",", ".", 1)
		default:
			clean = strings.ReplaceAll(clean, ",", "")
		}
	}

	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse %q as a number", orig)
	}
	if neg {
		f = -f
	}
	return f, nil
}

func toDate(v any) (*string, error) {
	s, err := toText(v)
	if err != nil || s == nil {
		return nil, err
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, *s); err == nil {
			iso := d.Format("2006-01-02")
			return &iso, nil
		}
	}
	return nil, fmt.Errorf("cannot parse %q as a date", *s)
}

func toPage(v any) (*int, error) {
	if v == nil {
		return nil, nil
	}
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case string:
		s = strings.TrimFunc(t, func(r rune) bool { return !unicode.IsDigit(r) })
	default:
		return nil, fmt.Errorf("unexpected page type %T", v)
	}
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("invalid page %q", s)
	}
	return &n, nil
}
