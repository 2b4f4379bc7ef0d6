package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"

	"scan2sheet/internal/logger"
	"scan2sheet/pkg/models"
)

const (
	// DefaultAPIVersion is the Document Intelligence REST API version.
	DefaultAPIVersion = "2023-07-31"

	// DefaultModelID is the layout model that returns tables.
	DefaultModelID = "prebuilt-layout"

	subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"
	operationLocation     = "Operation-Location"

	maxBackoff = 30 * time.Second

	// maxErrorBody bounds how much of an error response ends up in messages.
	maxErrorBody = 512
)

// Analyze operation states.
const (
	statusNotStarted = "notStarted"
	statusRunning    = "running"
	statusSucceeded  = "succeeded"
	statusFailed     = "failed"
)

// AzureRecognizer implements TableRecognizer using the Azure AI Document
// Intelligence analyze API: submit the image, then poll the returned
// operation until it completes.
type AzureRecognizer struct {
	httpClient *http.Client
	config     Config
	log        zerolog.Logger
}

// NewAzureRecognizer creates a recognizer for cfg.Endpoint and cfg.APIKey.
// A nil httpClient uses a client without its own timeout; every call is
// bounded by cfg.Timeout instead.
func NewAzureRecognizer(cfg Config, httpClient *http.Client) (*AzureRecognizer, error) {
	const op = "NewAzureRecognizer"

	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Endpoint == "" {
		return nil, WrapRecognitionError(BackendAzure, op, ErrInvalidConfiguration, "endpoint is required")
	}
	if !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		return nil, WrapRecognitionError(BackendAzure, op, ErrInvalidConfiguration, fmt.Sprintf("endpoint must be an http(s) URL: %s", cfg.Endpoint))
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, WrapRecognitionError(BackendAzure, op, ErrMissingCredentials, "API key is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &AzureRecognizer{
		httpClient: httpClient,
		config:     cfg,
		log:        logger.WithComponent("azure-layout"),
	}, nil
}

// RecognizeTables submits jpeg for layout analysis and waits for the result.
func (a *AzureRecognizer) RecognizeTables(ctx context.Context, jpeg []byte) ([]models.RecognizedTable, error) {
	const op = "RecognizeTables"

	if len(jpeg) == 0 {
		return nil, WrapRecognitionError(BackendAzure, op, ErrEmptyImage, "")
	}

	callCtx, cancel := context.WithTimeout(ctx, a.config.timeout())
	defer cancel()

	start := time.Now()

	location, err := a.submit(callCtx, jpeg)
	if err != nil {
		return nil, err
	}

	result, err := a.poll(callCtx, location)
	if err != nil {
		return nil, err
	}

	tables := convertAzureTables(result.Tables)
	if err := checkExtents(BackendAzure, op, tables); err != nil {
		return nil, err
	}

	a.log.Debug().
		Int("tables", len(tables)).
		Int("image_bytes", len(jpeg)).
		Dur("duration", time.Since(start)).
		Msg("Layout analysis completed")

	return tables, nil
}

// Close is a no-op; the HTTP client owns no per-recognizer resources.
func (a *AzureRecognizer) Close() error {
	return nil
}

func (a *AzureRecognizer) analyzeURL() string {
	return fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s",
		a.config.Endpoint, a.config.ModelID, a.config.APIVersion)
}

// submit posts the image and returns the operation URL. Throttling and
// server errors are retried with backoff, honoring Retry-After.
func (a *AzureRecognizer) submit(ctx context.Context, jpeg []byte) (string, error) {
	const op = "Submit"

	bo := a.newBackoff(a.config.retryBackoff())
	for attempt := 0; ; attempt++ {
		location, err := a.submitOnce(ctx, jpeg)
		if err == nil {
			return location, nil
		}

		if cerr := contextError(ctx); cerr != nil {
			return "", WrapRecognitionError(BackendAzure, op, cerr, "")
		}

		var statusErr *httpStatusError
		if !errors.As(err, &statusErr) || !statusErr.retryable() || attempt >= a.config.maxRetries() {
			return "", wrapAzureError(op, err)
		}

		pause := bo.Pause()
		if statusErr.retryAfter >= 0 {
			pause = statusErr.retryAfter
		}
		a.log.Warn().
			Int("status", statusErr.code).
			Int("attempt", attempt+1).
			Dur("pause", pause).
			Msg("Retrying layout analysis request")

		if err := gax.Sleep(ctx, pause); err != nil {
			return "", WrapRecognitionError(BackendAzure, op, contextError(ctx), "")
		}
	}
}

func (a *AzureRecognizer) submitOnce(ctx context.Context, jpeg []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.analyzeURL(), bytes.NewReader(jpeg))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", ImageMimeType)
	req.Header.Set(subscriptionKeyHeader, a.config.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", newHTTPStatusError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	location := resp.Header.Get(operationLocation)
	if location == "" {
		return "", fmt.Errorf("%w: %s header missing", ErrMalformedResponse, operationLocation)
	}
	return location, nil
}

// poll fetches the operation until it reaches a terminal state.
func (a *AzureRecognizer) poll(ctx context.Context, location string) (*analyzeResult, error) {
	const op = "Poll"

	bo := a.newBackoff(a.config.pollInterval())
	failures := 0
	for {
		status, retryAfter, err := a.pollOnce(ctx, location)
		if cerr := contextError(ctx); cerr != nil {
			return nil, WrapRecognitionError(BackendAzure, op, cerr, "")
		}

		pause := time.Duration(-1)
		switch {
		case err != nil:
			var statusErr *httpStatusError
			if !errors.As(err, &statusErr) || !statusErr.retryable() || failures >= a.config.maxRetries() {
				return nil, wrapAzureError(op, err)
			}
			failures++
			pause = statusErr.retryAfter

		case status.Status == statusSucceeded:
			if status.AnalyzeResult == nil {
				return nil, WrapRecognitionError(BackendAzure, op, ErrMalformedResponse, "succeeded without analyzeResult")
			}
			return status.AnalyzeResult, nil

		case status.Status == statusFailed:
			return nil, WrapRecognitionError(BackendAzure, op, ErrAnalysisFailed, status.Error.String())

		case status.Status == statusNotStarted || status.Status == statusRunning:
			pause = retryAfter

		default:
			return nil, WrapRecognitionError(BackendAzure, op, ErrMalformedResponse, fmt.Sprintf("unknown status %q", status.Status))
		}

		if pause < 0 {
			pause = bo.Pause()
		}
		if err := gax.Sleep(ctx, pause); err != nil {
			return nil, WrapRecognitionError(BackendAzure, op, contextError(ctx), "")
		}
	}
}

// pollOnce returns the operation state and the Retry-After pause (-1 when
// the header is absent).
func (a *AzureRecognizer) pollOnce(ctx context.Context, location string) (*analyzeOperation, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, -1, fmt.Errorf("%w: invalid %s: %v", ErrMalformedResponse, operationLocation, err)
	}
	req.Header.Set(subscriptionKeyHeader, a.config.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, -1, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, -1, newHTTPStatusError(resp)
	}

	var status analyzeOperation
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, -1, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &status, parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

func (a *AzureRecognizer) newBackoff(initial time.Duration) *gax.Backoff {
	return &gax.Backoff{
		Initial:    initial,
		Max:        maxBackoff,
		Multiplier: 2,
	}
}

// wrapAzureError maps a transport or status error onto the package errors.
func wrapAzureError(op string, err error) error {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return WrapRecognitionError(BackendAzure, op, statusErr.sentinel(), statusErr.Error())
	}
	return WrapRecognitionError(BackendAzure, op, err, "")
}

// httpStatusError is a non-success HTTP response.
type httpStatusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func newHTTPStatusError(resp *http.Response) *httpStatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &httpStatusError{
		code:       resp.StatusCode,
		body:       strings.TrimSpace(string(body)),
		retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

func (e *httpStatusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("HTTP %d", e.code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

func (e *httpStatusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= http.StatusInternalServerError
}

func (e *httpStatusError) sentinel() error {
	switch {
	case e.code == http.StatusUnauthorized || e.code == http.StatusForbidden:
		return ErrUnauthorized
	case e.code == http.StatusTooManyRequests:
		return ErrQuotaExceeded
	default:
		return ErrRequestFailed
	}
}

// parseRetryAfter reads a delay-seconds Retry-After value; -1 means absent
// or unparsable.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return -1
	}
	return time.Duration(secs) * time.Second
}

type analyzeOperation struct {
	Status        string         `json:"status"`
	Error         *azureError    `json:"error,omitempty"`
	AnalyzeResult *analyzeResult `json:"analyzeResult,omitempty"`
}

type azureError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *azureError) String() string {
	if e == nil {
		return "no error details"
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type analyzeResult struct {
	Tables []azureTable `json:"tables"`
}

type azureTable struct {
	RowCount    int         `json:"rowCount"`
	ColumnCount int         `json:"columnCount"`
	Cells       []azureCell `json:"cells"`
}

type azureCell struct {
	Kind        string `json:"kind,omitempty"`
	RowIndex    int    `json:"rowIndex"`
	ColumnIndex int    `json:"columnIndex"`
	Content     string `json:"content"`
}

func convertAzureTables(tables []azureTable) []models.RecognizedTable {
	out := make([]models.RecognizedTable, 0, len(tables))
	for _, t := range tables {
		rt := models.RecognizedTable{
			RowCount:    t.RowCount,
			ColumnCount: t.ColumnCount,
			Cells:       make([]models.Cell, 0, len(t.Cells)),
		}
		for _, c := range t.Cells {
			rt.Cells = append(rt.Cells, models.Cell{
				RowIndex:    c.RowIndex,
				ColumnIndex: c.ColumnIndex,
				Content:     c.Content,
			})
		}
		out = append(out, rt)
	}
	return out
}
