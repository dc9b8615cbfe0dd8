package bill

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	itemsSheet   = "Line Items"
	summarySheet = "Summary"
)

// WriteXLSX renders a record as a workbook with one row per line item and a
// summary sheet holding the bill-level fields and warnings.
func WriteXLSX(rec *Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", itemsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}
	index, err := f.GetSheetIndex(itemsSheet)
	if err != nil {
		return nil, fmt.Errorf("find sheet: %w", err)
	}
	f.SetActiveSheet(index)

	// The first failed cell or column write is returned
	var werr error
	keep := func(err error) {
		if werr == nil && err != nil {
			werr = err
		}
	}
	write := func(sheet string, col, row int, v any) {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			keep(err)
			return
		}
		keep(f.SetCellValue(sheet, cell, v))
	}

	for i, h := range []string{"Page", "Description", "Quantity", "Unit Price", "Total"} {
		write(itemsSheet, i+1, 1, h)
	}
	for i, it := range rec.LineItems {
		row := i + 2
		write(itemsSheet, 1, row, optional(it.Page))
		write(itemsSheet, 2, row, it.Description)
		write(itemsSheet, 3, row, optional(it.Quantity))
		write(itemsSheet, 4, row, optional(it.UnitPrice))
		write(itemsSheet, 5, row, it.Total)
	}
	keep(f.SetColWidth(itemsSheet, "A", "A", 8))
	keep(f.SetColWidth(itemsSheet, "B", "B", 48))
	keep(f.SetColWidth(itemsSheet, "C", "E", 14))

	summary := [][2]any{
		{"Vendor", optional(rec.Vendor)},
		{"Bill Date", optional(rec.BillDate)},
		{"Currency", optional(rec.Currency)},
		{"Subtotal", optional(rec.Subtotal)},
		{"Tax", optional(rec.Tax)},
		{"Grand Total", optional(rec.GrandTotal)},
		{"Item Count", rec.ItemCount},
	}
	for i, kv := range summary {
		write(summarySheet, 1, i+1, kv[0])
		write(summarySheet, 2, i+1, kv[1])
	}
	row := len(summary) + 2
	for _, w := range rec.Warnings {
		write(summarySheet, 1, row, w.Code)
		write(summarySheet, 2, row, w.Message)
		row++
	}
	keep(f.SetColWidth(summarySheet, "A", "A", 22))
	keep(f.SetColWidth(summarySheet, "B", "B", 60))

	if werr != nil {
		return nil, fmt.Errorf("xlsx cells: %w", werr)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// optional unwraps a nullable field into a cell value, leaving the cell
// empty for null
func optional[T any](p *T) any {
	if p == nil {
		return ""
	}
	return *p
}
