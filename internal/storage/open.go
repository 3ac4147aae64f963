package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bdougie/annotator/internal/config"
)

// Ledger file names inside the data directory.
const (
	SQLiteFileName = "annotations.db"
	JSONFileName   = "annotations.json"
)

// Open returns the ledger selected by cfg.Storage.Backend.
func Open(ctx context.Context, cfg *config.Config) (Ledger, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		return OpenSQLite(ctx, filepath.Join(cfg.Paths.DataDir, SQLiteFileName))
	case "file":
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		return NewFileLedger(filepath.Join(cfg.Paths.DataDir, JSONFileName), cfg.Storage.BatchSize)
	case "postgres":
		return OpenPostgres(ctx, cfg.Storage.Postgres.ConnString())
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// UsesDataDir reports whether the configured backend keeps its state in
// the local data directory.
func UsesDataDir(cfg *config.Config) bool {
	return cfg.Storage.Backend == "sqlite" || cfg.Storage.Backend == "file"
}
