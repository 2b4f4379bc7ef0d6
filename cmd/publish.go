package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"scan2sheet/internal/export"
	"scan2sheet/internal/logger"
	"scan2sheet/internal/sheets"
)

var publishCmd = &cobra.Command{
	Use:   "publish [files...]",
	Short: "Extract tables and add them to a Google Sheets spreadsheet",
	Long: `Run the same extraction as "scan2sheet extract" and add one worksheet per
table to an existing Google Sheets spreadsheet. Worksheets are named like the
XLSX export; names already present in the spreadsheet get a ~n suffix.

The spreadsheet must be shared with the service account.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_SHEET_URL - Target spreadsheet (or use --sheet-url)`,
	Example: `  scan2sheet publish page1.jpg page2.jpg --sheet-url https://docs.google.com/spreadsheets/d/<id>/edit`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().String("sheet-url", "", "Google Sheets URL (default: GOOGLE_SHEET_URL)")
	publishCmd.Flags().String("pages", "", "PDF page selection, e.g. 1-3,5 (default: all)")
	publishCmd.Flags().Duration("timeout", 10*time.Minute, "Processing timeout")
}

func runPublish(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("publish")

	sheetURL, _ := cmd.Flags().GetString("sheet-url")
	pageRange, _ := cmd.Flags().GetString("pages")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	if sheetURL == "" {
		sheetURL = cfg.GoogleSheetURL
	}
	if sheetURL == "" {
		return fmt.Errorf("no spreadsheet given. Use --sheet-url or set GOOGLE_SHEET_URL")
	}

	uploads, err := readUploads(args, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	publisher, err := sheets.NewPublisher(ctx, sheetURL, sheets.Credentials{
		JSON: cfg.GoogleCredentialsJSON,
		File: cfg.GoogleCredentialsFile,
	})
	if err != nil {
		if errors.Is(err, sheets.ErrMissingCredentials) || errors.Is(err, sheets.ErrInvalidSheetURL) {
			return err
		}
		return fmt.Errorf("failed to connect to Google Sheets: %w", err)
	}

	extractor, recognizer, _, err := newExtractor(ctx, cfg, pageRange, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := recognizer.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close recognizer")
		}
	}()

	result, err := extractor.Extract(ctx, uploads)
	if err != nil {
		return handleExtractError(err, log)
	}
	reportFailures(result.Failures)
	if result.Empty() {
		return handleExtractError(export.ErrNoTables, log)
	}

	published, err := publisher.PublishTables(ctx, result.Tables)
	if err != nil {
		log.Error().Err(err).Msg("Publishing failed")
		return fmt.Errorf("failed to publish tables: %w", err)
	}

	fmt.Printf("Added %d sheet(s) to %s\n", len(published.Sheets), published.URL())
	for _, name := range published.Sheets {
		fmt.Printf("  %s\n", name)
	}
	return nil
}
