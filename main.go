package main

import (
	"log"

	"github.com/joho/godotenv"

	"scan2sheet/cmd"
	"scan2sheet/internal/config"
	"scan2sheet/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Logging is configured before flags are parsed; commands load and
	// validate the full configuration themselves.
	cfg, err := config.LoadWithoutValidation("")
	if err != nil {
		log.Printf("Warning: Could not load configuration: %v", err)
		if err := logger.Setup(logger.DefaultConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	} else {
		if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	}

	log := logger.WithComponent("main")
	log.Debug().Msg("Starting scan2sheet")

	cmd.Execute()
}
