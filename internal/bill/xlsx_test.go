package bill

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"
)

var _ = Describe("WriteXLSX", func() {
	It("should write one row per line item and a summary sheet", func() {
		vendor := "Acme"
		grand := 30.0
		page := 2
		rec := &Record{
			Vendor: &vendor,
			LineItems: []LineItem{
				{Description: "Widget", Total: 10},
				{Description: "Gadget", Total: 20, Page: &page},
			},
			GrandTotal: &grand,
			ItemCount:  2,
			Warnings:   []Warning{{Code: WarnGrandTotalRounding, Message: "off by a cent"}},
		}

		b, err := WriteXLSX(rec)
		Expect(err).NotTo(HaveOccurred())

		f, err := excelize.OpenReader(bytes.NewReader(b))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()

		Expect(f.GetSheetList()).To(Equal([]string{itemsSheet, summarySheet}))

		rows, err := f.GetRows(itemsSheet)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(3))
		Expect(rows[1][1]).To(Equal("Widget"))
		Expect(rows[2][0]).To(Equal("2"))
		Expect(rows[2][4]).To(Equal("20"))

		vendorCell, err := f.GetCellValue(summarySheet, "B1")
		Expect(err).NotTo(HaveOccurred())
		Expect(vendorCell).To(Equal("Acme"))

		code, err := f.GetCellValue(summarySheet, "A9")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal(WarnGrandTotalRounding))
	})

	It("should return a cell that cannot be written", func() {
		rec := &Record{
			LineItems: []LineItem{{Description: strings.Repeat("x", excelize.TotalCellChars+1), Total: 1}},
			ItemCount: 1,
		}

		b, err := WriteXLSX(rec)
		Expect(err).To(MatchError(excelize.ErrCellCharsLength))
		Expect(b).To(BeNil())
	})
})
