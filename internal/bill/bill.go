package bill

// LineItem is one itemized charge on a bill
type LineItem struct {
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price"`
	Total       float64  `json:"total"`
	Page        *int     `json:"page"` // 1-based page the row was read from, when known
}

// Record is the normalized representation of a bill
type Record struct {
	Vendor     *string    `json:"vendor"`
	BillDate   *string    `json:"bill_date"` // ISO 8601 (YYYY-MM-DD)
	Currency   *string    `json:"currency"`  // ISO 4217
	LineItems  []LineItem `json:"line_items"`
	Subtotal   *float64   `json:"subtotal"`
	Tax        *float64   `json:"tax"`
	GrandTotal *float64   `json:"grand_total"`
	ItemCount  int        `json:"item_count"`
	Warnings   []Warning  `json:"warnings"`
}

// Warning codes for non-fatal reconciliation problems
const (
	WarnGrandTotalRounding = "grand_total_rounding"
	WarnGrandTotalMismatch = "grand_total_mismatch"
	WarnSubtotalMismatch   = "subtotal_mismatch"
	WarnLineItemArithmetic = "line_item_arithmetic"
)

// Warning flags an arithmetic inconsistency that did not prevent extraction
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HasWarning reports whether the record carries a warning with the given code
func (r *Record) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
