package bill

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("classifySummary", func() {
	DescribeTable("reads whole labels only",
		func(description string, expected summaryKind) {
			Expect(classifySummary(description)).To(Equal(expected))
		},
		Entry("total", "TOTAL", summaryGrandTotal),
		Entry("grand total with punctuation", "Grand Total:", summaryGrandTotal),
		Entry("total including tax", "Total (incl. VAT)", summaryGrandTotal),
		Entry("total with currency", "Total Rs.", summaryGrandTotal),
		Entry("amount due", "Amount Due", summaryGrandTotal),
		Entry("hyphenated subtotal", "Sub-Total", summarySubtotal),
		Entry("tax with a rate", "GST @ 18%", summaryTax),
		Entry("tax with a leading verb", "Add: CGST 9%", summaryTax),
		Entry("service tax", "Service Tax", summaryTax),
		Entry("carry-over abbreviation", "C/F", summaryCarried),
		Entry("carried forward", "Balance Carried Forward", summaryCarried),
		Entry("charge starting with total", "Total body scan", notSummary),
		Entry("charge ending with total", "Delivery total", notSummary),
		Entry("charge starting with a tax name", "VAT registration fee", notSummary),
		Entry("package name", "Total Care Package", notSummary),
		Entry("plain charge", "Consultation", notSummary),
	)
})
