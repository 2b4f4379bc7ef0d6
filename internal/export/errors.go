package export

import (
	"errors"
	"fmt"
)

// Common export errors
var (
	// ErrNoTables is returned when there is nothing to export. It is an
	// expected outcome, not a failure: callers must simply not offer a file.
	ErrNoTables = errors.New("no tables to export")

	// ErrGridTooLarge is returned when a grid exceeds the XLSX sheet limits
	// (1,048,576 rows by 16,384 columns).
	ErrGridTooLarge = errors.New("grid exceeds spreadsheet limits")

	// ErrInvalidWorkbook is returned when workbook bytes cannot be opened.
	ErrInvalidWorkbook = errors.New("invalid or corrupted workbook")
)

// ExportError wraps errors with the export operation and sheet involved.
type ExportError struct {
	// Op is the operation that failed (e.g., "Workbook", "CSV").
	Op string

	// Sheet is the sheet being written, if any.
	Sheet string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("export: %s failed (sheet %q): %v", e.Op, e.Sheet, e.Err)
	}
	return fmt.Sprintf("export: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExportError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *ExportError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapExportError wraps an error as an ExportError if it isn't already one.
func WrapExportError(op, sheet string, err error) error {
	if err == nil {
		return nil
	}

	var exportErr *ExportError
	if errors.As(err, &exportErr) {
		return err
	}

	return &ExportError{Op: op, Sheet: sheet, Err: err}
}
