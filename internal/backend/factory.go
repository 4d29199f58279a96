package backend

import (
	"fmt"

	"tally/internal/config"
	"tally/internal/storage"
)

// Open builds the repository named by the config. The memory backend holds
// nothing across restarts; it exists for tests and local experiments.
func Open(cfg *config.Config) (storage.Repository, error) {
	switch t := Type(cfg.DataBackend); t {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		return repo, nil
	case MemoryBackend:
		return storage.NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %q", t)
	}
}
