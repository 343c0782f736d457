package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDotEnvLoader_Load_FileNotExists(t *testing.T) {
	loader := NewDotEnvLoaderWithEnv(newMockEnvLoader(map[string]string{
		"LOG_LEVEL": "debug",
	}), "non-existent.env")

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestDotEnvLoader_Load_ValidFile(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LOG_LEVEL=debug\nLOG_FORMAT=json\n"), 0o644))

	loader := NewDotEnvLoader(envFile)
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}
