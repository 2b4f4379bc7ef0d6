package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scan2sheet/internal/config"
	"scan2sheet/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "scan2sheet",
	Short: "Turn photographed or scanned handwritten tables into spreadsheets",
	Long: `scan2sheet sends images of handwritten tables to a cloud layout
recognition service and writes the recognized tables to an Excel workbook
(one sheet per table) or a single CSV file.

Scanned PDFs are converted to one JPEG per page first. The same pipeline
is available as a browser upload form via "scan2sheet serve".

Recognition backends:
  azure       Azure AI Document Intelligence (prebuilt-layout), default
  documentai  Google Cloud Document AI

Configuration is read from the environment, a .env file, or scan2sheet.yaml.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./scan2sheet.yaml or $HOME/.config/scan2sheet/scan2sheet.yaml)")
}

// loadConfig reads the configuration named by --config. Commands that call
// the recognition service need validate; the others only read limits.
func loadConfig(cmd *cobra.Command, validate bool) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if validate {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadWithoutValidation(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
