package recognition

import (
	"errors"
	"fmt"
)

// Common recognition errors
var (
	// ErrRequestFailed is returned when the service rejects a request or
	// cannot be reached after all retries.
	ErrRequestFailed = errors.New("recognition request failed")

	// ErrUnauthorized is returned when the service rejects the credentials
	// (HTTP 401/403, gRPC PERMISSION_DENIED/UNAUTHENTICATED).
	ErrUnauthorized = errors.New("recognition service rejected the credentials")

	// ErrQuotaExceeded is returned when the service keeps throttling after all retries.
	ErrQuotaExceeded = errors.New("recognition service quota exceeded")

	// ErrAnalysisFailed is returned when the service accepted the image but
	// reported the analysis as failed.
	ErrAnalysisFailed = errors.New("layout analysis failed")

	// ErrMalformedResponse is returned when a response cannot be interpreted.
	ErrMalformedResponse = errors.New("malformed recognition response")

	// ErrTimeout is returned when a call exceeds the configured timeout.
	ErrTimeout = errors.New("recognition timed out")

	// ErrEmptyImage is returned for an empty image payload.
	ErrEmptyImage = errors.New("empty image")

	// ErrMissingCredentials is returned when a backend is constructed without
	// the credentials it needs.
	ErrMissingCredentials = errors.New("missing recognition credentials")

	// ErrInvalidConfiguration is returned for an unusable backend configuration.
	ErrInvalidConfiguration = errors.New("invalid recognition configuration")
)

// RecognitionError wraps errors with additional context about the failed call.
type RecognitionError struct {
	// Op is the operation that failed (e.g., "Submit", "Poll", "ProcessDocument").
	Op string

	// Backend is the backend that produced the error.
	Backend string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *RecognitionError) Error() string {
	prefix := "recognition"
	if e.Backend != "" {
		prefix += " (" + e.Backend + ")"
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s failed: %s: %v", prefix, e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", prefix, e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *RecognitionError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *RecognitionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapRecognitionError wraps an error as a RecognitionError if it isn't already one.
func WrapRecognitionError(backend, op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var recErr *RecognitionError
	if errors.As(err, &recErr) {
		return err
	}

	return &RecognitionError{Op: op, Backend: backend, Err: err, Details: details}
}
