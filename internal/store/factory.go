package store

import (
	"context"
	"fmt"

	"github.com/rowjay/collection-backup/internal/config"
)

// New opens the store named by cfg.Driver.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "sqlite3", "":
		return OpenSQLite(ctx, cfg.SQLitePath)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}
