package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"scan2sheet/internal/export"
	"scan2sheet/internal/logger"
	"scan2sheet/internal/workflow"
	"scan2sheet/pkg/models"
)

const (
	formatXLSX = "xlsx"
	formatCSV  = "csv"
	formatJSON = "json"
)

var extractCmd = &cobra.Command{
	Use:   "extract [files...]",
	Short: "Extract handwritten tables from images and scanned PDFs",
	Long: `Send every image (JPEG, PNG, TIFF, BMP) and every page of every scanned
PDF to the configured recognition backend and write the tables found.

Images are numbered in argument order, PDF pages counting one each, and
the XLSX workbook gets one sheet per table named Page_<n>_Table_<m>.
The CSV output stacks all tables without headers. A file that fails is
reported on stderr and the remaining files are still processed.

Required environment variables (azure backend):
  DOCUMENT_INTELLIGENCE_ENDPOINT - Service endpoint URL
  DOCUMENT_INTELLIGENCE_KEY - Subscription key

Required environment variables (documentai backend):
  RECOGNITION_BACKEND=documentai
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID
  DOCUMENT_AI_PROCESSOR_ID - Form parser processor ID
  GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS`,
	Example: `  # Write extracted_tables.xlsx
  scan2sheet extract page1.jpg page2.png

  # Write a single CSV
  scan2sheet extract scan.pdf --format csv -o tables.csv

  # Print the grids as JSON, four recognition calls at a time
  scan2sheet extract *.jpg --format json --workers 4`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

// ExtractOutput represents the JSON output structure when --format json is used
type ExtractOutput struct {
	Tables   []models.ExtractedTable `json:"tables"`
	Failures []FailureOutput         `json:"failures,omitempty"`
	Pages    int                     `json:"pages"`
}

// FailureOutput is one file or page that produced no tables.
type FailureOutput struct {
	Source string `json:"source"`
	Page   int    `json:"page,omitempty"`
	Error  string `json:"error"`
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output file (default: extracted_tables.xlsx, data.csv, or stdout for json)")
	extractCmd.Flags().StringP("format", "f", formatXLSX, "Output format: xlsx, csv or json")
	extractCmd.Flags().String("pages", "", "PDF page selection, e.g. 1-3,5 (default: all)")
	extractCmd.Flags().Int("workers", 0, "Concurrent recognition calls (default from config)")
	extractCmd.Flags().Duration("timeout", 10*time.Minute, "Processing timeout")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	outputPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	pageRange, _ := cmd.Flags().GetString("pages")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	format = strings.ToLower(format)
	if format != formatXLSX && format != formatCSV && format != formatJSON {
		return fmt.Errorf("unknown format %q (want xlsx, csv or json)", format)
	}

	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers, _ = cmd.Flags().GetInt("workers")
	}

	uploads, err := readUploads(args, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	extractor, recognizer, _, err := newExtractor(ctx, cfg, pageRange, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := recognizer.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close recognizer")
		}
	}()

	log.Info().
		Int("files", len(uploads)).
		Str("format", format).
		Str("backend", cfg.RecognitionBackend).
		Msg("Starting extraction")

	result, err := extractor.Extract(ctx, uploads)
	if err != nil {
		return handleExtractError(err, log)
	}
	reportFailures(result.Failures)

	if result.Empty() {
		return handleExtractError(export.ErrNoTables, log)
	}

	data, defaultPath, err := encodeResult(result, format)
	if err != nil {
		return handleExtractError(err, log)
	}
	if outputPath == "" {
		outputPath = defaultPath
	}

	return writeOutput(data, outputPath, log)
}

// encodeResult serializes result and returns the default output path for
// format ("" means stdout).
func encodeResult(result *workflow.Result, format string) ([]byte, string, error) {
	switch format {
	case formatCSV:
		data, err := export.CSV(export.Grids(result.Tables))
		return data, export.CSVFilename, err
	case formatJSON:
		out := ExtractOutput{Tables: result.Tables, Pages: result.Pages}
		for _, f := range result.Failures {
			out.Failures = append(out.Failures, FailureOutput{Source: f.Source, Page: f.Page, Error: f.Err.Error()})
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("failed to create JSON output: %w", err)
		}
		return append(data, '\n'), "", nil
	default:
		data, err := export.Workbook(result.Tables)
		return data, export.WorkbookFilename, err
	}
}

// writeOutput writes data to path, or to stdout when path is empty or "-".
func writeOutput(data []byte, path string, log zerolog.Logger) error {
	if path == "" || path == "-" {
		if _, err := os.Stdout.Write(data); err != nil {
			log.Error().Err(err).Msg("Failed to write to stdout")
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", path).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}

	log.Info().
		Str("output_file", path).
		Int("bytes", len(data)).
		Msg("Results written to file")
	fmt.Fprintln(os.Stderr, path)
	return nil
}
