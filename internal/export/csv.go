package export

import (
	"bytes"
	"encoding/csv"

	"scan2sheet/pkg/models"
)

const (
	// CSVFilename is the download name of the CSV artifact.
	CSVFilename = "data.csv"

	// CSVContentType is the MIME type of the CSV artifact.
	CSVContentType = "text/csv; charset=utf-8"
)

// CSV stacks grids vertically, in order, into one comma-separated table.
// No header row or index column is added. Grids of different widths are
// padded on the right with empty fields to the widest grid.
// It returns ErrNoTables when grids is empty.
func CSV(grids []models.Grid) ([]byte, error) {
	const op = "CSV"

	if len(grids) == 0 {
		return nil, ErrNoTables
	}

	width := 0
	for _, g := range grids {
		if c := g.Columns(); c > width {
			width = c
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	record := make([]string, width)
	for _, g := range grids {
		for _, row := range g {
			n := copy(record, row)
			for i := n; i < width; i++ {
				record[i] = ""
			}
			if err := w.Write(record); err != nil {
				return nil, WrapExportError(op, "", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, WrapExportError(op, "", err)
	}

	return buf.Bytes(), nil
}

// Grids returns the grids of tables in order.
func Grids(tables []models.ExtractedTable) []models.Grid {
	grids := make([]models.Grid, len(tables))
	for i, t := range tables {
		grids[i] = t.Grid
	}
	return grids
}
