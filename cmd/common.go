package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"scan2sheet/internal/config"
	"scan2sheet/internal/export"
	"scan2sheet/internal/raster"
	"scan2sheet/internal/recognition"
	"scan2sheet/internal/server"
	"scan2sheet/internal/workflow"
)

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling processing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// newRasterizer builds the PDF rasterizer from cfg.
func newRasterizer(cfg *config.Config) *raster.Rasterizer {
	return raster.NewRasterizer(newNormalizer(cfg), cfg.MaxPDFBytes())
}

func newNormalizer(cfg *config.Config) raster.Normalizer {
	return raster.Normalizer{Quality: cfg.JPEGQuality, MaxDimension: cfg.MaxDimension, MaxBytes: cfg.MaxUploadBytes()}
}

// newExtractor wires the recognition backend, rasterizer and normalizer
// into a workflow. The caller closes the returned recognizer.
func newExtractor(ctx context.Context, cfg *config.Config, pageRange string, log zerolog.Logger) (*workflow.Extractor, recognition.TableRecognizer, *raster.Rasterizer, error) {
	recognizer, err := recognition.New(ctx, cfg.RecognizerConfig())
	if err != nil {
		log.Error().Err(err).Str("backend", cfg.RecognitionBackend).Msg("Failed to create recognizer")
		return nil, nil, nil, fmt.Errorf("failed to create %s recognizer: %w", cfg.RecognitionBackend, err)
	}

	rasterizer := newRasterizer(cfg)
	extractor := workflow.NewExtractor(recognizer, rasterizer, newNormalizer(cfg),
		workflow.WithWorkers(cfg.Workers),
		workflow.WithPageRange(pageRange),
		workflow.WithObserver(server.NewMetricsObserver(cfg.RecognitionBackend)),
	)
	return extractor, recognizer, rasterizer, nil
}

// readUploads reads the named files in argument order.
func readUploads(paths []string, log zerolog.Logger) ([]workflow.Upload, error) {
	uploads := make([]workflow.Upload, 0, len(paths))
	for _, path := range paths {
		data, err := readInputFile(path, log)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, workflow.Upload{Name: filepath.Base(path), Data: data})
	}
	return uploads, nil
}

// readInputFile checks that path is a readable, non-empty regular file.
func readInputFile(path string, log zerolog.Logger) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", path).Msg("Input file not found")
			return nil, fmt.Errorf("file not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().Str("file", path).Msg("Permission denied accessing input file")
			return nil, fmt.Errorf("permission denied accessing file: %s", path)
		}
		return nil, fmt.Errorf("error accessing file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("file is empty: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// reportFailures prints per-file failures to stderr.
func reportFailures(failures []workflow.FileError) {
	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "warning: %v\n", f)
	}
}

// handleExtractError provides user-friendly error messages for extraction failures
func handleExtractError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Extraction failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, recognition.ErrTimeout):
		return fmt.Errorf("processing timed out. Try increasing --timeout or sending fewer files")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, recognition.ErrUnauthorized):
		return fmt.Errorf("the recognition service rejected the credentials. Check DOCUMENT_INTELLIGENCE_KEY (azure) or GOOGLE_APPLICATION_CREDENTIALS (documentai): %w", err)
	case errors.Is(err, recognition.ErrQuotaExceeded):
		return fmt.Errorf("recognition quota exceeded. Wait and retry, or lower the number of workers: %w", err)
	case errors.Is(err, recognition.ErrInvalidConfiguration):
		return fmt.Errorf("invalid recognition configuration: %w", err)
	case errors.Is(err, raster.ErrInvalidPDF):
		return fmt.Errorf("invalid or corrupted PDF file. Please check the file integrity")
	case errors.Is(err, raster.ErrNoPageImages):
		return fmt.Errorf("the PDF contains no scanned page images. Only scanned PDFs can be converted")
	case errors.Is(err, raster.ErrInvalidPageRange):
		return fmt.Errorf("invalid --pages value: %w", err)
	case errors.Is(err, raster.ErrTooLarge):
		return fmt.Errorf("input is too large. Raise max_pdf_mb or split the file: %w", err)
	case errors.Is(err, export.ErrNoTables):
		return fmt.Errorf("no tables found in the input. Nothing was written")
	case errors.Is(err, export.ErrGridTooLarge):
		return fmt.Errorf("a recognized table exceeds the spreadsheet limits: %w", err)
	default:
		return fmt.Errorf("extraction failed: %w", err)
	}
}
