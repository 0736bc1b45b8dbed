package storage

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/interactive-markers/internal/config"
	gormstorage "github.com/OCAP2/interactive-markers/internal/storage/gorm"
	"github.com/OCAP2/interactive-markers/internal/storage/memory"
	"github.com/OCAP2/interactive-markers/pkg/core"
)

// Compile-time interface checks
var (
	_ Backend = (*memory.Backend)(nil)
	_ Backend = (*gormstorage.Backend)(nil)
)

func discard() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestNewBackend_Memory(t *testing.T) {
	for _, typ := range []string{"memory", ""} {
		b, err := NewBackend(config.StorageConfig{Type: typ}, "test", discard())
		require.NoError(t, err)
		assert.IsType(t, &memory.Backend{}, b)
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := NewBackend(config.StorageConfig{Type: "redis"}, "test", discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type: redis")
}

func TestNewBackend_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.db")
	cfg := config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: path}}

	b, err := NewBackend(cfg, "test", discard())
	require.NoError(t, err)
	require.IsType(t, &gormstorage.Backend{}, b)
	require.NoError(t, b.Init())

	ctx := context.Background()
	require.NoError(t, b.SaveMarkers(ctx, []core.Marker{{Name: "a", Scale: 1}}))
	require.NoError(t, b.Close())

	// a fresh backend on the same file sees the snapshot
	b, err = NewBackend(cfg, "test", discard())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })

	got, err := b.LoadMarkers(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Name)
}

func TestNewBackend_PostgresFallsBackToSQLite(t *testing.T) {
	cfg := config.StorageConfig{
		Type:   "postgres",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "fallback.db")},
		Postgres: config.DBConfig{
			Host:     "127.0.0.1",
			Port:     "1",
			Username: "postgres",
			Password: "postgres",
			Database: "imarkers",
		},
	}

	b, err := NewBackend(cfg, "test", discard())
	require.NoError(t, err)
	require.IsType(t, &gormstorage.Backend{}, b)

	gb := b.(*gormstorage.Backend)
	t.Cleanup(func() { _ = gb.Close() })
	assert.Equal(t, "sqlite", gb.DB().Dialector.Name())
}
