package recognition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"scan2sheet/internal/logger"
	"scan2sheet/pkg/models"
)

// documentProcessor is the subset of the Document AI client used here.
type documentProcessor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
	Close() error
}

// DocumentAIRecognizer implements TableRecognizer using a Google Cloud
// Document AI processor that emits page tables (Form Parser or Layout Parser).
type DocumentAIRecognizer struct {
	client documentProcessor
	config Config
	log    zerolog.Logger
}

// NewDocumentAIRecognizer creates a Document AI client for cfg.Location.
// Credentials come from cfg.CredentialsJSON, then cfg.CredentialsFile, then
// application default credentials.
func NewDocumentAIRecognizer(ctx context.Context, cfg Config) (*DocumentAIRecognizer, error) {
	const op = "NewDocumentAIRecognizer"

	if cfg.ProjectID == "" {
		return nil, WrapRecognitionError(BackendDocumentAI, op, ErrInvalidConfiguration, "project ID is required")
	}
	if cfg.ProcessorID == "" {
		return nil, WrapRecognitionError(BackendDocumentAI, op, ErrInvalidConfiguration, "processor ID is required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}

	var clientOptions []option.ClientOption

	// The global endpoint only serves the us multi-region.
	if cfg.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	hasCredentials := false
	if cfg.CredentialsJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		hasCredentials = true
	} else if cfg.CredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(cfg.CredentialsFile))
		hasCredentials = true
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if !hasCredentials {
			return nil, WrapRecognitionError(BackendDocumentAI, op, ErrMissingCredentials, "no credentials configured and no application default credentials found")
		}
		return nil, WrapRecognitionError(BackendDocumentAI, op, err, fmt.Sprintf("failed to create Document AI client for location: %s", cfg.Location))
	}

	return newDocumentAIRecognizer(cfg, client), nil
}

func newDocumentAIRecognizer(cfg Config, client documentProcessor) *DocumentAIRecognizer {
	return &DocumentAIRecognizer{
		client: client,
		config: cfg,
		log:    logger.WithComponent("document-ai"),
	}
}

// RecognizeTables processes one JPEG image and returns the tables on its page.
func (d *DocumentAIRecognizer) RecognizeTables(ctx context.Context, jpeg []byte) ([]models.RecognizedTable, error) {
	const op = "ProcessDocument"

	if len(jpeg) == 0 {
		return nil, WrapRecognitionError(BackendDocumentAI, op, ErrEmptyImage, "")
	}

	callCtx, cancel := context.WithTimeout(ctx, d.config.timeout())
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: d.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  jpeg,
				MimeType: ImageMimeType,
			},
		},
	}

	start := time.Now()
	resp, err := d.client.ProcessDocument(callCtx, req, d.retryOption())
	if err != nil {
		if cerr := contextError(callCtx); cerr != nil {
			return nil, WrapRecognitionError(BackendDocumentAI, op, cerr, "")
		}
		return nil, d.handleProcessingError(op, err)
	}
	if resp.GetDocument() == nil {
		return nil, WrapRecognitionError(BackendDocumentAI, op, ErrMalformedResponse, "no document in response")
	}

	tables := TablesFromDocument(resp.GetDocument())
	if err := checkExtents(BackendDocumentAI, op, tables); err != nil {
		return nil, err
	}

	d.log.Debug().
		Str("processor", d.config.ProcessorID).
		Int("tables", len(tables)).
		Dur("duration", time.Since(start)).
		Msg("Document AI processing completed")

	return tables, nil
}

// Close closes the gRPC connection.
func (d *DocumentAIRecognizer) Close() error {
	return d.client.Close()
}

// processorName constructs the full processor resource name.
func (d *DocumentAIRecognizer) processorName() string {
	if d.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			d.config.ProjectID, d.config.Location, d.config.ProcessorID, d.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		d.config.ProjectID, d.config.Location, d.config.ProcessorID)
}

func (d *DocumentAIRecognizer) retryOption() gax.CallOption {
	maxRetries := d.config.maxRetries()
	initial := d.config.retryBackoff()
	return gax.WithRetry(func() gax.Retryer {
		return &boundedRetryer{
			Retryer: gax.OnCodes([]codes.Code{
				codes.Unavailable,
				codes.ResourceExhausted,
				codes.DeadlineExceeded,
			}, gax.Backoff{
				Initial:    initial,
				Max:        maxBackoff,
				Multiplier: 2,
			}),
			remaining: maxRetries,
		}
	})
}

// boundedRetryer stops an inner Retryer after a fixed number of retries.
type boundedRetryer struct {
	gax.Retryer
	remaining int
}

func (r *boundedRetryer) Retry(err error) (time.Duration, bool) {
	if r.remaining <= 0 {
		return 0, false
	}
	pause, ok := r.Retryer.Retry(err)
	if ok {
		r.remaining--
	}
	return pause, ok
}

// handleProcessingError converts Document AI errors to recognition errors.
func (d *DocumentAIRecognizer) handleProcessingError(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		if errors.Is(err, context.Canceled) {
			return WrapRecognitionError(BackendDocumentAI, op, context.Canceled, "")
		}
		return WrapRecognitionError(BackendDocumentAI, op, ErrRequestFailed, err.Error())
	}

	switch st.Code() {
	case codes.PermissionDenied, codes.Unauthenticated:
		return WrapRecognitionError(BackendDocumentAI, op, ErrUnauthorized, st.Message())
	case codes.ResourceExhausted:
		return WrapRecognitionError(BackendDocumentAI, op, ErrQuotaExceeded, st.Message())
	case codes.NotFound:
		return WrapRecognitionError(BackendDocumentAI, op, ErrInvalidConfiguration, fmt.Sprintf("processor not found: %s", d.config.ProcessorID))
	case codes.InvalidArgument:
		return WrapRecognitionError(BackendDocumentAI, op, ErrAnalysisFailed, st.Message())
	case codes.DeadlineExceeded:
		return WrapRecognitionError(BackendDocumentAI, op, ErrTimeout, st.Message())
	case codes.Canceled:
		return WrapRecognitionError(BackendDocumentAI, op, context.Canceled, st.Message())
	default:
		return WrapRecognitionError(BackendDocumentAI, op, ErrRequestFailed, fmt.Sprintf("%s: %s", st.Code(), st.Message()))
	}
}

// TablesFromDocument converts every page table of doc into sparse cells.
// Header rows come first, then body rows. A cell spanning several columns
// advances the column index by its span, and positions covered by a cell
// spanning several rows are skipped in the rows below it.
func TablesFromDocument(doc *documentaipb.Document) []models.RecognizedTable {
	text := []rune(doc.GetText())

	var tables []models.RecognizedTable
	for _, page := range doc.GetPages() {
		for _, t := range page.GetTables() {
			rows := make([]*documentaipb.Document_Page_Table_TableRow, 0, len(t.GetHeaderRows())+len(t.GetBodyRows()))
			rows = append(rows, t.GetHeaderRows()...)
			rows = append(rows, t.GetBodyRows()...)
			tables = append(tables, convertTable(rows, text))
		}
	}
	return tables
}

func convertTable(rows []*documentaipb.Document_Page_Table_TableRow, text []rune) models.RecognizedTable {
	occupied := make(map[[2]int]bool)
	table := models.RecognizedTable{RowCount: len(rows)}

	for r, row := range rows {
		col := 0
		for _, cell := range row.GetCells() {
			for occupied[[2]int{r, col}] {
				col++
			}

			rowSpan := min(max(int(cell.GetRowSpan()), 1), len(rows)-r)
			colSpan := max(int(cell.GetColSpan()), 1)
			if col+colSpan > MaxTableColumns {
				// Oversized; the extent check rejects the table.
				table.ColumnCount = col + colSpan
				return table
			}
			for dr := 0; dr < rowSpan; dr++ {
				for dc := 0; dc < colSpan; dc++ {
					occupied[[2]int{r + dr, col + dc}] = true
				}
			}

			table.Cells = append(table.Cells, models.Cell{
				RowIndex:    r,
				ColumnIndex: col,
				Content:     anchorText(cell.GetLayout().GetTextAnchor(), text),
			})

			col += colSpan
			table.ColumnCount = max(table.ColumnCount, col)
		}
	}
	return table
}

// anchorText resolves the text segments of anchor against the document text.
// Segment offsets count Unicode code points.
func anchorText(anchor *documentaipb.Document_TextAnchor, text []rune) string {
	var b strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := int(seg.GetStartIndex()), int(seg.GetEndIndex())
		if start < 0 || end > len(text) || start >= end {
			continue
		}
		b.WriteString(string(text[start:end]))
	}
	return strings.TrimSpace(b.String())
}
