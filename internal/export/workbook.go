// Package export serializes assembled grids into downloadable artifacts: a
// multi-sheet XLSX workbook (one sheet per table) or a single flat CSV
// (all tables stacked).
package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"scan2sheet/pkg/models"
)

const (
	// WorkbookFilename is the download name of the XLSX artifact.
	WorkbookFilename = "extracted_tables.xlsx"

	// WorkbookContentType is the MIME type of the XLSX artifact.
	WorkbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// defaultSheet is the sheet excelize creates in every new file.
	defaultSheet = "Sheet1"
)

// Sheet is one named grid of a workbook.
type Sheet struct {
	Name string
	Grid models.Grid
}

// Workbook writes one sheet per table, in order, and returns the XLSX bytes.
// It returns ErrNoTables when tables is empty.
func Workbook(tables []models.ExtractedTable) ([]byte, error) {
	sheets := make([]Sheet, len(tables))
	for i, t := range tables {
		sheets[i] = Sheet{Name: SheetName(t.PageNumber, t.TableIndex), Grid: t.Grid}
	}
	return WriteSheets(sheets)
}

// WriteSheets writes sheets in order. Names are sanitized and deduplicated.
func WriteSheets(sheets []Sheet) ([]byte, error) {
	const op = "Workbook"

	if len(sheets) == 0 {
		return nil, ErrNoTables
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	namer := NewSheetNamer()
	for i, sheet := range sheets {
		name := namer.Next(sheet.Name)

		if err := checkLimits(sheet.Grid); err != nil {
			return nil, WrapExportError(op, name, err)
		}

		if i == 0 {
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return nil, WrapExportError(op, name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, WrapExportError(op, name, err)
		}

		if err := writeGrid(f, name, sheet.Grid); err != nil {
			return nil, WrapExportError(op, name, err)
		}
	}

	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, WrapExportError(op, "", err)
	}
	return buf.Bytes(), nil
}

// writeGrid writes grid row-major from A1 and records the full extent as the
// sheet dimension, so trailing empty cells survive a read back.
func writeGrid(f *excelize.File, sheet string, grid models.Grid) error {
	for r, row := range grid {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for c, v := range row {
			values[c] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	rows, cols := grid.Rows(), grid.Columns()
	if rows == 0 || cols == 0 {
		return nil
	}
	end, err := excelize.CoordinatesToCellName(cols, rows)
	if err != nil {
		return err
	}
	return f.SetSheetDimension(sheet, "A1:"+end)
}

func checkLimits(grid models.Grid) error {
	if grid.Rows() > excelize.TotalRows || grid.Columns() > excelize.MaxColumns {
		return fmt.Errorf("%w: %d rows x %d columns", ErrGridTooLarge, grid.Rows(), grid.Columns())
	}
	return nil
}

// ReadWorkbook reads every sheet of an XLSX file back into grids. Rows are
// padded to the sheet dimension so empty cells read back as "".
func ReadWorkbook(data []byte) ([]Sheet, error) {
	const op = "ReadWorkbook"

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, WrapExportError(op, "", fmt.Errorf("%w: %v", ErrInvalidWorkbook, err))
	}
	defer func() { _ = f.Close() }()

	var sheets []Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, WrapExportError(op, name, err)
		}

		wantRows, wantCols := sheetExtent(f, name)
		grid := padGrid(rows, wantRows, wantCols)
		sheets = append(sheets, Sheet{Name: name, Grid: grid})
	}
	return sheets, nil
}

// sheetExtent parses the sheet dimension ("A1:C4") into row and column counts.
// It returns zeros when the dimension is absent or is the single-cell
// placeholder every new sheet carries.
func sheetExtent(f *excelize.File, sheet string) (int, int) {
	dim, err := f.GetSheetDimension(sheet)
	if err != nil || !strings.Contains(dim, ":") {
		return 0, 0
	}
	parts := strings.Split(dim, ":")
	col, row, err := excelize.CellNameToCoordinates(parts[1])
	if err != nil {
		return 0, 0
	}
	return row, col
}

func padGrid(rows [][]string, wantRows, wantCols int) models.Grid {
	if len(rows) > wantRows {
		wantRows = len(rows)
	}
	for _, row := range rows {
		if len(row) > wantCols {
			wantCols = len(row)
		}
	}

	grid := make(models.Grid, wantRows)
	for r := range grid {
		grid[r] = make([]string, wantCols)
		if r < len(rows) {
			copy(grid[r], rows[r])
		}
	}
	return grid
}
