// Package server provides the browser upload UI and the HTTP API: PDF to
// page images, and table extraction to XLSX, CSV or a JSON preview. The
// UI renders its results server-side with downloads embedded in the page.
// Uploads are processed in memory within the request.
package server

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"scan2sheet/internal/logger"
	"scan2sheet/internal/workflow"
	"scan2sheet/pkg/models"
)

// tableExtractor defines the methods needed by the server from a workflow.
type tableExtractor interface {
	Extract(ctx context.Context, uploads []workflow.Upload) (*workflow.Result, error)
}

// pageSource converts one PDF into page images.
type pageSource interface {
	Pages(ctx context.Context, pdfData []byte, pageRange string) ([]models.RasterPage, error)
	PageCount(pdfData []byte) (int, error)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	extractor      tableExtractor
	pages          pageSource
	backend        string
	corsOrigin     string
	maxUploadMB    int64
	requestTimeout time.Duration
	index          *template.Template
	views          *template.Template
	log            zerolog.Logger
}

// Config holds server configuration.
type Config struct {
	Backend        string
	CORSOrigin     string
	MaxUploadMB    int64
	RequestTimeout time.Duration
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend,omitempty"`
	Time    string `json:"time"`
}

type ErrorResponse struct {
	Error    string            `json:"error"`
	Failures []FailureResponse `json:"failures,omitempty"`
}

type FailureResponse struct {
	Source string `json:"source"`
	Page   int    `json:"page,omitempty"`
	Error  string `json:"error"`
}

type PageResponse struct {
	Page       int    `json:"page"`
	Source     string `json:"source"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Filename   string `json:"filename"`
	JPEGBase64 string `json:"jpeg_base64"`
}

type PagesResponse struct {
	Pages    []PageResponse    `json:"pages"`
	Count    int               `json:"count"`
	Failures []FailureResponse `json:"failures,omitempty"`
}

type TableResponse struct {
	Sheet  string     `json:"sheet"`
	Page   int        `json:"page"`
	Table  int        `json:"table"`
	Source string     `json:"source"`
	Rows   [][]string `json:"rows"`
}

type TablesResponse struct {
	Tables            []TableResponse   `json:"tables"`
	Failures          []FailureResponse `json:"failures"`
	DownloadAvailable bool              `json:"download_available"`
}

// NewServer creates a server that extracts tables with extractor and
// converts PDFs with pages.
func NewServer(extractor tableExtractor, pages pageSource, config Config) *Server {
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 50
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Minute
	}
	if config.CORSOrigin == "" {
		config.CORSOrigin = "*"
	}

	return &Server{
		extractor:      extractor,
		pages:          pages,
		backend:        config.Backend,
		corsOrigin:     config.CORSOrigin,
		maxUploadMB:    config.MaxUploadMB,
		requestTimeout: config.RequestTimeout,
		index:          template.Must(template.New("index").Parse(indexTemplate)),
		views:          template.Must(template.New("views").Parse(viewsTemplate)),
		log:            logger.WithComponent("server"),
	}
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.corsMiddleware(s.indexHandler))
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/pages", s.corsMiddleware(s.pagesViewHandler))
	mux.HandleFunc("/tables", s.corsMiddleware(s.tablesViewHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/pdf/pages", s.corsMiddleware(s.pdfPagesHandler))
	mux.HandleFunc("/api/pdf/page", s.corsMiddleware(s.pdfPageHandler))
	mux.HandleFunc("/api/tables", s.corsMiddleware(s.tablesJSONHandler))
	mux.HandleFunc("/api/tables/xlsx", s.corsMiddleware(s.tablesXLSXHandler))
	mux.HandleFunc("/api/tables/csv", s.corsMiddleware(s.tablesCSVHandler))
}

func (s *Server) maxUploadBytes() int64 {
	return s.maxUploadMB * 1024 * 1024
}
