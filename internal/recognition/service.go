// Package recognition sends page images to a cloud layout-analysis service
// and returns the tables it detects as sparse cells.
//
// Two backends implement TableRecognizer:
//   - azure: Azure AI Document Intelligence prebuilt-layout (REST, API key)
//   - documentai: Google Cloud Document AI form/layout processors (gRPC)
//
// Every call runs under the configured timeout. Throttling and transient
// server errors are retried with exponential backoff up to MaxRetries times.
// Recognition quality is entirely the service's; this package only maps its
// response onto models.RecognizedTable.
package recognition

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"scan2sheet/pkg/models"
)

const (
	// BackendAzure is the Azure AI Document Intelligence backend.
	BackendAzure = "azure"

	// BackendDocumentAI is the Google Cloud Document AI backend.
	BackendDocumentAI = "documentai"

	// DefaultTimeout bounds one RecognizeTables call, polling included.
	DefaultTimeout = 2 * time.Minute

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// ImageMimeType is the content type of every submitted image.
	ImageMimeType = "image/jpeg"
)

// Bounds on a reported table extent. A table beyond them cannot be written
// to a worksheet, and its grid would not fit in memory.
const (
	MaxTableRows    = excelize.TotalRows
	MaxTableColumns = excelize.MaxColumns
	MaxTableCells   = 4 << 20
)

// TableRecognizer detects tables on a single page image.
type TableRecognizer interface {
	// RecognizeTables analyzes one JPEG image. A page without tables
	// yields an empty slice and no error.
	RecognizeTables(ctx context.Context, jpeg []byte) ([]models.RecognizedTable, error)

	// Close releases the backend's connections.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend    string
	Timeout    time.Duration
	MaxRetries int

	// RetryBackoff is the first retry pause; it doubles up to 30s.
	RetryBackoff time.Duration

	// PollInterval is the first status-poll pause when the service sends
	// no Retry-After header.
	PollInterval time.Duration

	// Azure
	Endpoint   string
	APIKey     string
	APIVersion string
	ModelID    string

	// Document AI
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	CredentialsJSON  string
	CredentialsFile  string
}

// New creates the backend named by cfg.Backend.
func New(ctx context.Context, cfg Config) (TableRecognizer, error) {
	switch cfg.Backend {
	case BackendAzure, "":
		return NewAzureRecognizer(cfg, nil)
	case BackendDocumentAI:
		return NewDocumentAIRecognizer(ctx, cfg)
	default:
		return nil, WrapRecognitionError(cfg.Backend, "New", ErrInvalidConfiguration, fmt.Sprintf("unknown backend %q", cfg.Backend))
	}
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c Config) maxRetries() int {
	if c.MaxRetries < 0 {
		return 0
	}
	return c.MaxRetries
}

func (c Config) retryBackoff() time.Duration {
	if c.RetryBackoff > 0 {
		return c.RetryBackoff
	}
	return time.Second
}

func (c Config) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return time.Second
}

// contextError maps an expired or canceled call context onto the package
// errors. It returns nil while ctx is still live.
func contextError(ctx context.Context) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return fmt.Errorf("%w: %v", ErrTimeout, context.DeadlineExceeded)
	default:
		return ctx.Err()
	}
}

// checkExtents rejects tables whose declared size is out of bounds.
func checkExtents(backend, op string, tables []models.RecognizedTable) error {
	for i, t := range tables {
		if t.RowCount > MaxTableRows || t.ColumnCount > MaxTableColumns ||
			int64(t.RowCount)*int64(t.ColumnCount) > MaxTableCells {
			return WrapRecognitionError(backend, op, ErrMalformedResponse,
				fmt.Sprintf("table %d reports %d rows x %d columns", i+1, t.RowCount, t.ColumnCount))
		}
	}
	return nil
}
