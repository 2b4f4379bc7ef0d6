package models

import "image"

// Cell is one (row, column, text) fact reported by the recognition service.
// Coordinates are zero-based and are not guaranteed to be unique or in range.
type Cell struct {
	RowIndex    int    `json:"row_index"`
	ColumnIndex int    `json:"column_index"`
	Content     string `json:"content"`
}

// RecognizedTable is the service's per-table result: declared extent plus a
// sparse cell list. A table may have zero cells.
type RecognizedTable struct {
	RowCount    int    `json:"row_count"`
	ColumnCount int    `json:"column_count"`
	Cells       []Cell `json:"cells"`
}

// Grid is a dense row-major table of text. Every row has the same length.
type Grid [][]string

// Rows returns the number of rows.
func (g Grid) Rows() int {
	return len(g)
}

// Columns returns the widest row length, which for an assembled grid is the
// declared column count.
func (g Grid) Columns() int {
	cols := 0
	for _, row := range g {
		if len(row) > cols {
			cols = len(row)
		}
	}
	return cols
}

// ExtractedTable is an assembled grid together with where it came from.
type ExtractedTable struct {
	PageNumber int    `json:"page_number"` // 1-based position of the image in the batch
	TableIndex int    `json:"table_index"` // 1-based position of the table on the page
	Source     string `json:"source"`      // uploaded file name
	Grid       Grid   `json:"rows"`
}

// RasterPage is one decoded page image, held in memory only.
type RasterPage struct {
	Number int         `json:"page"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Image  image.Image `json:"-"`
	JPEG   []byte      `json:"-"`
}
