package raster

import (
	"errors"
	"fmt"
)

// Common raster errors
var (
	// ErrInvalidPDF is returned when the data is not a readable PDF document.
	ErrInvalidPDF = errors.New("invalid or corrupted PDF document")

	// ErrNoPageImages is returned when no selected page carries a raster image.
	// Only scanned PDFs (one embedded image per page) can be converted.
	ErrNoPageImages = errors.New("PDF contains no page images")

	// ErrUnsupportedImage is returned when an upload is not a decodable
	// JPEG, PNG, TIFF, BMP, GIF or WebP image.
	ErrUnsupportedImage = errors.New("unsupported or corrupted image")

	// ErrTooLarge is returned when an input exceeds the configured size limit.
	ErrTooLarge = errors.New("input exceeds the maximum size limit")

	// ErrInvalidPageRange is returned for a malformed page selection.
	ErrInvalidPageRange = errors.New("invalid page range")
)

// RasterError wraps errors with additional context about the conversion failure.
type RasterError struct {
	// Op is the operation that failed (e.g., "Pages", "Normalize").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *RasterError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("raster: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("raster: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *RasterError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *RasterError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapRasterError wraps an error as a RasterError if it isn't already one.
func WrapRasterError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var rasterErr *RasterError
	if errors.As(err, &rasterErr) {
		return err
	}

	return &RasterError{Op: op, Err: err, Details: details}
}
