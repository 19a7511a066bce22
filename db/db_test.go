package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/stalker/config"
)

type probe struct {
	ID   int `gorm:"primaryKey"`
	Name string
}

func TestOpen_MemoryDatabasesAreIsolated(t *testing.T) {
	a, err := Open(config.DatabaseConfig{Mode: ModeMemory})
	require.NoError(t, err)
	b, err := Open(config.DatabaseConfig{Mode: ModeMemory})
	require.NoError(t, err)

	require.NoError(t, a.AutoMigrate(&probe{}))
	require.NoError(t, a.Create(&probe{ID: 1, Name: "a"}).Error)

	assert.False(t, b.Migrator().HasTable(&probe{}))
}

func TestOpen_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stalker.db")
	db, err := Open(config.DatabaseConfig{Mode: ModeSQLite, SQLitePath: path})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&probe{}))
	require.NoError(t, db.Create(&probe{ID: 7, Name: "x"}).Error)

	var got probe
	require.NoError(t, db.First(&got, 7).Error)
	assert.Equal(t, "x", got.Name)
}

func TestOpen_UnknownMode(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Mode: "embedded_xml"})
	assert.ErrorContains(t, err, "unknown mode")
}
