package main

import (
	"fmt"
	"log/slog"

	"hipsterbar/internal/config"
	"hipsterbar/internal/storage"
	"hipsterbar/internal/storage/postgres"
	"hipsterbar/internal/storage/sqlite"
)

func openRepository(cfg *config.Config, logger *slog.Logger) (storage.Repository, error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		return postgres.Open(cfg.DatabaseURL, logger)
	case config.StorageSQLite:
		if cfg.SQLitePath == "" {
			logger.Warn("using in-memory storage, bars are lost on restart", "component", programName)
		}
		return sqlite.Open(cfg.SQLitePath, logger)
	}
	return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
}
