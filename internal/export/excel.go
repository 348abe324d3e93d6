// Package export renders expenditure export rows as an xlsx workbook.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"messbook/backend/internal/domain"
)

const sheetName = "Expenditures"

var headings = []string{"Date", "Item Name", "Quantity Used", "Cost Per Unit", "Total Cost", "User"}

// WriteExcel streams rows as a single-sheet workbook. Column order matches
// the headings above; dates are written as "2006-01-02 15:04:05" strings so
// the file is readable without cell-format fiddling.
func WriteExcel(w io.Writer, rows []domain.ExportRow) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	for col, heading := range headings {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, heading); err != nil {
			return err
		}
	}

	for i, row := range rows {
		values := []any{
			row.Date.Format("2006-01-02 15:04:05"),
			row.ItemName,
			row.QuantityUsed,
			row.CostPerUnit,
			row.TotalCost,
			row.UserName,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// FileName builds the download name for an export, embedding the day filter
// when one was applied.
func FileName(date string) string {
	if date == "" {
		return "expenditures-all.xlsx"
	}
	return fmt.Sprintf("expenditures-%s.xlsx", date)
}
