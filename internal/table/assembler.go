// Package table turns the sparse cell lists returned by a recognition service
// into dense grids.
//
// Assembly policy:
//   - The grid always has exactly the declared number of rows and columns.
//   - Positions not covered by any cell hold the empty string.
//   - Cells whose coordinates fall outside the declared extent are dropped.
//     They never resize the grid.
//   - When several cells share a coordinate, the last one in input order wins.
package table

import "scan2sheet/pkg/models"

// AssemblyReport counts the anomalies resolved while assembling a grid.
// Neither kind is an error; callers may log them.
type AssemblyReport struct {
	// Dropped is the number of cells ignored because they were out of range.
	Dropped int
	// Overwritten is the number of cells that replaced an earlier cell at the
	// same coordinate.
	Overwritten int
}

// Clean reports whether assembly saw no anomalies.
func (r AssemblyReport) Clean() bool {
	return r.Dropped == 0 && r.Overwritten == 0
}

// Assemble builds a rowCount x columnCount grid from cells.
func Assemble(rowCount, columnCount int, cells []models.Cell) models.Grid {
	grid, _ := AssembleWithReport(rowCount, columnCount, cells)
	return grid
}

// AssembleWithReport is Assemble that also reports dropped and overwritten cells.
// Negative counts are treated as zero.
func AssembleWithReport(rowCount, columnCount int, cells []models.Cell) (models.Grid, AssemblyReport) {
	if rowCount < 0 {
		rowCount = 0
	}
	if columnCount < 0 {
		columnCount = 0
	}

	grid := make(models.Grid, rowCount)
	for r := range grid {
		grid[r] = make([]string, columnCount)
	}

	var report AssemblyReport
	written := make([]bool, rowCount*columnCount)
	for _, cell := range cells {
		r, c := cell.RowIndex, cell.ColumnIndex
		if r < 0 || r >= rowCount || c < 0 || c >= columnCount {
			report.Dropped++
			continue
		}
		if written[r*columnCount+c] {
			report.Overwritten++
		}
		written[r*columnCount+c] = true
		grid[r][c] = cell.Content
	}

	return grid, report
}

// AssembleTable is a convenience wrapper for a RecognizedTable.
func AssembleTable(t models.RecognizedTable) (models.Grid, AssemblyReport) {
	return AssembleWithReport(t.RowCount, t.ColumnCount, t.Cells)
}
