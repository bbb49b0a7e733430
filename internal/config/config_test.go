package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ASTROLABE_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 4, cfg.MaxHops)
	assert.Equal(t, 5, cfg.MaxRoutes)
	assert.Equal(t, 20, cfg.MaxRoutesGlobal)
	assert.Equal(t, "https://horizon.stellar.org", cfg.HorizonURL)
	assert.False(t, cfg.SkipDEXDiscovery)
	assert.False(t, cfg.Backup.Enabled)
}

func TestLoadRouteBounds(t *testing.T) {
	t.Setenv("ASTROLABE_DATA_DIR", t.TempDir())
	t.Setenv("MAX_HOPS", "12")
	t.Setenv("MAX_ROUTES", "50")
	t.Setenv("MAX_ROUTES_GLOBAL", "10")

	cfg, err := Load()
	require.NoError(t, err)

	// Each bound clamps to its ceiling; the per-query default never
	// exceeds the global cap
	assert.Equal(t, 6, cfg.MaxHops)
	assert.Equal(t, 10, cfg.MaxRoutesGlobal)
	assert.Equal(t, 10, cfg.MaxRoutes)
}

func TestLoadBackupValidation(t *testing.T) {
	t.Setenv("ASTROLABE_DATA_DIR", t.TempDir())
	t.Setenv("BACKUP_ENABLED", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_BUCKET")
}
