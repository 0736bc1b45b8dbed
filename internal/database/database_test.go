package database

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/interactive-markers/internal/config"
	"github.com/OCAP2/interactive-markers/internal/model"
)

func TestConnectSQLite_SetupIsIdempotent(t *testing.T) {
	m := NewManager(zerolog.New(io.Discard))
	require.NoError(t, m.ConnectSQLite(filepath.Join(t.TempDir(), "markers.db")))
	t.Cleanup(func() { _ = m.Close() })

	require.NoError(t, m.Setup("imarkers"))
	require.NoError(t, m.Setup("imarkers"))

	var count int64
	require.NoError(t, m.DB.Model(&model.ServerInfo{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.True(t, m.DB.Migrator().HasTable(&model.Marker{}))
}

func TestConnectSQLite_InMemory(t *testing.T) {
	m := NewManager(zerolog.New(io.Discard))
	require.NoError(t, m.ConnectSQLite(""))
	t.Cleanup(func() { _ = m.Close() })

	assert.True(t, m.IsValid)
	require.NoError(t, m.Setup("test"))
}

func TestSetup_RequiresConnection(t *testing.T) {
	m := NewManager(zerolog.New(io.Discard))
	err := m.Setup("imarkers")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db not valid")
}

func TestClose_WithoutConnection(t *testing.T) {
	m := NewManager(zerolog.New(io.Discard))
	assert.NoError(t, m.Close())
}

func TestConnectPostgres_Unreachable(t *testing.T) {
	m := NewManager(zerolog.New(io.Discard))
	err := m.ConnectPostgres(config.DBConfig{
		Host:     "127.0.0.1",
		Port:     "1",
		Username: "postgres",
		Password: "postgres",
		Database: "imarkers",
	})
	require.Error(t, err)
	assert.False(t, m.IsValid)
}
