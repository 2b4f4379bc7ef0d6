package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scan2sheet/internal/logger"
	"scan2sheet/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the browser upload UI and HTTP API",
	Long: `Start an HTTP server with an upload page and REST endpoints:

  GET  /                 Upload page
  POST /api/pdf/pages    PDF (field "pdf") to page JPEGs, JSON
  POST /api/pdf/page?n=  One page of a PDF as page_<n>.jpg
  POST /api/tables       Images (field "files") to tables, JSON preview
  POST /api/tables/xlsx  Images to extracted_tables.xlsx
  POST /api/tables/csv   Images to data.csv
  GET  /health           Health check
  GET  /metrics          Prometheus metrics

The recognition backend is checked at startup; the server refuses to start
without usable credentials.`,
	Example: `  scan2sheet serve
  scan2sheet serve --port 8080
  scan2sheet serve --host 0.0.0.0 --port 3000 --workers 4`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int64("max-upload-size", 50, "maximum upload size in MB")
	serveCmd.Flags().Duration("timeout", 10*time.Minute, "request timeout")
	serveCmd.Flags().Int("workers", 1, "concurrent recognition calls per request")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("cors-origin") {
		cfg.CORSOrigin, _ = cmd.Flags().GetString("cors-origin")
	}
	if cmd.Flags().Changed("max-upload-size") {
		cfg.MaxUploadMB, _ = cmd.Flags().GetInt64("max-upload-size")
	}
	if cmd.Flags().Changed("timeout") {
		cfg.RequestTimeout, _ = cmd.Flags().GetDuration("timeout")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers, _ = cmd.Flags().GetInt("workers")
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", cfg.Port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	extractor, recognizer, rasterizer, err := newExtractor(ctx, cfg, "", log)
	if err != nil {
		return err
	}
	defer func() {
		if err := recognizer.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close recognizer")
		}
	}()

	srv := server.NewServer(extractor, rasterizer, server.Config{
		Backend:        cfg.RecognitionBackend,
		CORSOrigin:     cfg.CORSOrigin,
		MaxUploadMB:    cfg.MaxUploadMB,
		RequestTimeout: cfg.RequestTimeout,
	})

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	addr := cfg.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout + 30*time.Second,
	}

	go func() {
		log.Info().
			Str("addr", addr).
			Str("backend", cfg.RecognitionBackend).
			Int("workers", cfg.Workers).
			Msg("Starting scan2sheet server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server error")
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, initiating shutdown")
	}

	log.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("Starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
		return fmt.Errorf("shutdown failed: %w", err)
	}

	log.Info().Msg("Graceful shutdown completed")
	return nil
}
