package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"convertbot/internal/app"
	"convertbot/internal/config"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using existing environment variables")
	}

	cfg, err := config.LoadClickHouseFromEnv()
	if err != nil {
		log.Fatalf("Failed to read configuration: %v", err)
	}

	// Get command from arguments (default to "up")
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	log.Printf("Running migrations against %s:%d: %s", cfg.ClickHouseHost, cfg.ClickHousePort, command)
	if err := app.MigrateClickHouse(cfg, command); err != nil {
		log.Fatalf("Migration %s failed: %v", command, err)
	}
	log.Printf("Migration %s completed successfully", command)
}
