package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"reefdemog/adapters/ingest"
	"reefdemog/api"
	"reefdemog/domain/coral"
	"reefdemog/internal"
	"reefdemog/internal/config"
	"reefdemog/internal/dataset"
	"reefdemog/internal/testkit"
)

func main() {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	logger := internal.NewDefaultLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	repo, err := loadDataset(cfg, logger)
	if err != nil {
		// The server still starts so the failure is observable at /healthz,
		// but every data route answers DATA_UNAVAILABLE
		logger.Error("dataset load failed: %v", err)
		repo = nil
	}

	server := api.NewServer(repo, cfg, logger)
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// loadDataset reads the observation set once at startup. Source precedence:
// file, then SQL DSN, then the seeded synthetic dataset so a bare checkout is
// runnable.
func loadDataset(cfg *config.Config, logger *internal.Logger) (*dataset.Repository, error) {
	breakpoints, err := cfg.Stats.Breakpoints()
	if err != nil {
		return nil, err
	}

	var observations []coral.Observation
	var source string
	switch {
	case cfg.Data.File != "":
		source = cfg.Data.File
		observations, err = ingest.NewFileReader(cfg.Data.File).Read()
	case cfg.Data.DSN != "":
		source = cfg.Data.Driver + ":" + cfg.Data.Table
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		observations, err = ingest.NewSQLReader(cfg.Data.Driver, cfg.Data.DSN, cfg.Data.Table).Read(ctx)
	default:
		source = "synthetic"
		logger.Warn("no dataset configured, serving the seeded synthetic dataset")
		observations = testkit.Generate(testkit.DefaultGeneratorConfig())
	}
	if err != nil {
		return nil, err
	}

	repo := dataset.New(observations, breakpoints, source)
	logger.Info("dataset loaded: %d observations from %s (snapshot %s)",
		repo.Len(), source, repo.SnapshotID())
	return repo, nil
}
