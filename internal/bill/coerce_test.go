package bill

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Coercion", func() {
	DescribeTable("parseAmount",
		func(in string, want float64) {
			got, err := parseAmount(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNumerically("~", want, 0.0001))
		},
		Entry("plain decimal", "45.50", 45.50),
		Entry("currency symbol and thousands separator", "$1,234.50", 1234.50),
		Entry("european separators", "1.234,50 EUR", 1234.50),
		Entry("decimal comma", "12,5", 12.5),
		Entry("thousands comma only", "1,234", 1234.0),
		Entry("accounting negative", "(5.00)", -5.0),
		Entry("rupee prefix", "Rs. 100", 100.0),
	)

	It("should reject text without digits", func() {
		_, err := parseAmount("n/a amount")
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("toDate",
		func(in string, want string) {
			got, err := toDate(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).NotTo(BeNil())
			Expect(*got).To(Equal(want))
		},
		Entry("ISO", "2024-01-15", "2024-01-15"),
		Entry("US slashes", "01/15/2024", "2024-01-15"),
		Entry("day first slashes", "15/01/2024", "2024-01-15"),
		Entry("month name", "Jan 15, 2024", "2024-01-15"),
		Entry("day month name", "15 Jan 2024", "2024-01-15"),
	)

	It("should fail on an unreadable date", func() {
		_, err := toDate("sometime last week")
		Expect(err).To(HaveOccurred())
	})

	It("should read a page from a label", func() {
		p, err := toPage("Page 2")
		Expect(err).NotTo(HaveOccurred())
		Expect(*p).To(Equal(2))
	})

	Describe("record", func() {
		var (
			c   *coercer
			in  map[string]any
			out map[string]any
		)

		BeforeEach(func() {
			c = &coercer{}
		})

		JustBeforeEach(func() {
			out = c.record(in)
		})

		When("the model uses synonym keys", func() {
			BeforeEach(func() {
				in = map[string]any{
					"merchant": "Acme",
					"total":    "10.00",
					"items": []any{
						map[string]any{"item_name": "Widget", "amount": "10.00", "qty": "1", "rate": "10"},
					},
					"confidence": 0.9,
				}
			})

			It("should rename them to canonical keys", func() {
				Expect(*out["vendor"].(*string)).To(Equal("Acme"))
				Expect(*out["grand_total"].(*float64)).To(Equal(10.0))
				Expect(out["line_items"]).To(HaveLen(1))
			})

			It("should drop unknown keys", func() {
				Expect(out).NotTo(HaveKey("confidence"))
				Expect(c.problems).To(BeEmpty())
			})

			It("should fill every field", func() {
				Expect(out).To(HaveLen(len(recordKeys)))
			})
		})

		When("an item has no total but has quantity and unit price", func() {
			BeforeEach(func() {
				in = map[string]any{
					"line_items": []any{
						map[string]any{"description": "Widget", "quantity": "3", "unit_price": "2.50"},
					},
				}
			})

			It("should compute the total", func() {
				item := out["line_items"].([]any)[0].(map[string]any)
				Expect(*item["total"].(*float64)).To(Equal(7.5))
				Expect(c.problems).To(BeEmpty())
			})
		})

		When("an item has no total and nothing to compute it from", func() {
			BeforeEach(func() {
				in = map[string]any{
					"line_items": []any{map[string]any{"description": "Widget"}},
				}
			})

			It("should record a problem", func() {
				Expect(c.problems).To(ContainElement(ContainSubstring("/line_items/0/total")))
			})
		})

		When("line items are missing", func() {
			BeforeEach(func() {
				in = map[string]any{"vendor": "Acme"}
			})

			It("should record a problem", func() {
				Expect(c.problems).To(ContainElement(ContainSubstring("/line_items")))
			})
		})

		When("the currency is a symbol", func() {
			BeforeEach(func() {
				in = map[string]any{"currency": "€", "line_items": []any{}}
			})

			It("should map it to a code", func() {
				Expect(*out["currency"].(*string)).To(Equal("EUR"))
			})
		})

		When("the currency is unrecognized", func() {
			BeforeEach(func() {
				in = map[string]any{"currency": "dollars-ish", "line_items": []any{}}
			})

			It("should set it to null without a problem", func() {
				Expect(out["currency"]).To(BeNil())
				Expect(c.problems).To(BeEmpty())
			})
		})

		When("the response is page-wise", func() {
			BeforeEach(func() {
				in = map[string]any{
					"pagewise_line_items": []any{
						map[string]any{"page_no": "1", "bill_items": []any{
							map[string]any{"item_name": "A", "item_amount": "10.00"},
						}},
						map[string]any{"page_no": "2", "bill_items": []any{
							map[string]any{"item_name": "B", "item_amount": "20.00"},
						}},
					},
					"total_item_count": "2",
				}
			})

			It("should flatten the pages and keep page numbers", func() {
				items := out["line_items"].([]any)
				Expect(items).To(HaveLen(2))
				Expect(*items[0].(map[string]any)["page"].(*int)).To(Equal(1))
				Expect(*items[1].(map[string]any)["page"].(*int)).To(Equal(2))
				Expect(c.problems).To(BeEmpty())
			})
		})
	})
})
