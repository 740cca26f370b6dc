package storage

import (
	"fmt"

	"github.com/rowjay/collection-backup/internal/config"
)

// New returns the backup artifact store. Backups stay on the local filesystem.
func New(cfg config.StorageConfig) (Storage, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	return NewLocal(cfg.Path), nil
}
