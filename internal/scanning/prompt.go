package scanning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zombor/bill-extractor/internal/bill"
)

// systemInstruction is the shared system prompt used by all backends
const systemInstruction = `You are an expert at reading bills, invoices and receipts. You carefully read all text in the page images and extract every charged line item exactly once. You answer with a single JSON object and nothing else.`

// billExtractionRules are the user instructions sent with every document
const billExtractionRules = `Extract the bill shown in the %d page image(s) that follow. The pages are in order, starting at page 1.

Return ONLY valid JSON matching this JSON Schema exactly:
%s

Rules:
1. Every field in the schema must be present. When a value is not printed on the bill, use null. Never omit a field and never invent a value.
2. "line_items" contains only genuine charges: products, services, fees. Each item needs a "description" and a "total" for that row.
3. Subtotal, tax, VAT/GST, total, grand total, amount due, balance due, carried forward and brought forward rows are NOT line items, even when they are drawn as rows of the same table. Put their amounts in "subtotal", "tax" and "grand_total" instead.
4. Never count an amount twice. If the bill shows itemized rows and also a row summarizing them, extract the itemized rows and use the summary only for the summary fields.
5. Discounts and payments are not line items.
6. Set "page" on each line item to the 1-based page number it appears on.
7. "bill_date" is the bill or invoice date in YYYY-MM-DD format.
8. "currency" is the ISO 4217 code (for example USD, EUR, INR), or null if it cannot be determined.
9. All amounts are plain numbers without currency symbols or thousands separators (42.75, not "$42.75").
10. "quantity" is null when the bill does not print one.
11. Do not include any text before or after the JSON and do not use markdown code blocks.`

// ComposePrompt builds the payload sent to the model for a rendered document
func ComposePrompt(doc Document) Payload {
	schema := bill.OutputSchema()
	// OutputSchema only holds JSON-safe values
	b, _ := json.MarshalIndent(schema, "", "  ")

	return Payload{
		System:       systemInstruction,
		Instructions: fmt.Sprintf(billExtractionRules, len(doc), string(b)),
		Schema:       schema,
		Pages:        doc,
	}
}

// imageFormat returns the format suffix genai.ImageData expects ("png"),
// not the full MIME type ("image/png")
func imageFormat(mimeType string) string {
	return strings.TrimPrefix(mimeType, "image/")
}
