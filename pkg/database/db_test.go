package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndMigrate(t *testing.T) {
	cfg := Config{Path: filepath.Join(t.TempDir(), "nested", "history.db")}

	db, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))
	// idempotent
	require.NoError(t, Migrate(db))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM navigation`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestDefaultConfig_EnvOverride(t *testing.T) {
	t.Setenv("STACNAV_HISTORY_PATH", "/tmp/custom.db")
	assert.Equal(t, "/tmp/custom.db", DefaultConfig().Path)
}

func TestDSN(t *testing.T) {
	dsn := Config{Path: "/data/history.db"}.DSN()
	assert.Contains(t, dsn, "file:/data/history.db?")
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_busy_timeout=5000")

	assert.Contains(t, Config{Path: "x.db", BusyTimeoutMS: 250}.DSN(), "_busy_timeout=250")
}
