package main

import (
	"log"
	"os"

	"github.com/JonasLeetTheWay/ticketmarket/internal/config"
	"github.com/JonasLeetTheWay/ticketmarket/internal/database"
	"github.com/JonasLeetTheWay/ticketmarket/internal/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger := logging.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	// Connect to database; this also migrates the schema
	db, err := database.Connect(cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	// Seed demo users and tickets
	if err := database.SeedData(db); err != nil {
		logger.Error("failed to seed data", "error", err)
		os.Exit(1)
	}

	logger.Info("database migration and seeding completed")
}
