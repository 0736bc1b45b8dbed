// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/OCAP2/interactive-markers/internal/config"
	"github.com/OCAP2/interactive-markers/internal/database"
	gormstorage "github.com/OCAP2/interactive-markers/internal/storage/gorm"
	"github.com/OCAP2/interactive-markers/internal/storage/memory"
)

// NewBackend creates a storage backend based on configuration. A Postgres
// backend that cannot connect falls back to SQLite.
func NewBackend(cfg config.StorageConfig, namespace string, log zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		m := database.NewManager(log)
		if err := m.ConnectPostgres(cfg.Postgres); err != nil {
			log.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
			return newSQLite(cfg.SQLite.Path, namespace, log)
		}
		return gormstorage.New(m, namespace), nil
	case "sqlite":
		return newSQLite(cfg.SQLite.Path, namespace, log)
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

func newSQLite(path, namespace string, log zerolog.Logger) (Backend, error) {
	m := database.NewManager(log)
	if err := m.ConnectSQLite(path); err != nil {
		return nil, err
	}
	return gormstorage.New(m, namespace), nil
}
