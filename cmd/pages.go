package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"scan2sheet/internal/logger"
)

var pagesCmd = &cobra.Command{
	Use:   "pages [pdf-file]",
	Short: "Convert a scanned PDF into one JPEG per page",
	Long: `Extract the scanned image of every page of a PDF and write it as
page_<n>.jpg. Pages without an embedded image (vector text, blank pages)
are skipped.

No recognition credentials are needed.`,
	Example: `  # Write page_1.jpg, page_2.jpg, ... to the current directory
  scan2sheet pages scan.pdf

  # Only pages 1 to 3 and 5, into ./out
  scan2sheet pages scan.pdf -o out --pages 1-3,5`,
	Args: cobra.ExactArgs(1),
	RunE: runPages,
}

func init() {
	rootCmd.AddCommand(pagesCmd)

	pagesCmd.Flags().StringP("output", "o", ".", "Output directory")
	pagesCmd.Flags().String("pages", "", "Page selection, e.g. 1-3,5 (default: all)")
	pagesCmd.Flags().Duration("timeout", 5*time.Minute, "Processing timeout")
}

func runPages(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("pages")

	outputDir, _ := cmd.Flags().GetString("output")
	pageRange, _ := cmd.Flags().GetString("pages")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}

	data, err := readInputFile(args[0], log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	pages, err := newRasterizer(cfg).Pages(ctx, data, pageRange)
	if err != nil {
		return handleExtractError(err, log)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, p := range pages {
		path := filepath.Join(outputDir, fmt.Sprintf("page_%d.jpg", p.Number))
		if err := os.WriteFile(path, p.JPEG, 0o644); err != nil {
			log.Error().Err(err).Str("output_file", path).Msg("Failed to write page image")
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Println(path)
	}

	log.Info().
		Str("file", args[0]).
		Int("pages", len(pages)).
		Str("output_dir", outputDir).
		Msg("PDF pages written")
	return nil
}
