package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)

	assert.Equal(t, "compress", cfg.Processing.Mode)
	assert.Equal(t, "algorithm", cfg.Processing.Engine)
	assert.Equal(t, 0.8, cfg.Processing.Quality)
	assert.Equal(t, 4096, cfg.Processing.MaxDimension)
	assert.Equal(t, "lumen-backups", cfg.Remote.Directory)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
processing:
  engine: canvas
  quality: 0.35
remote:
  url: https://dav.example.com/files
  upload_limit: 2048
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "canvas", cfg.Processing.Engine)
	assert.Equal(t, 0.35, cfg.Processing.Quality)
	assert.Equal(t, 0.5, cfg.Processing.Intensity, "unset keys keep their defaults")
	assert.Equal(t, "https://dav.example.com/files", cfg.Remote.URL)
	assert.Equal(t, 2048, cfg.Remote.UploadLimit)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("LUMEN_WEBDAV_URL", "https://env.example.com")
	t.Setenv("LUMEN_WEBDAV_PASSWORD", "hunter2")
	t.Setenv("LUMEN_AI_API_KEY", "key")
	t.Setenv("LUMEN_HISTORY_DIR", "/tmp/h")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Remote.URL)
	assert.Equal(t, "hunter2", cfg.Remote.Password)
	assert.Equal(t, "key", cfg.AI.APIKey)
	assert.Equal(t, "/tmp/h", cfg.History.Dir)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LUMEN_TEST_DOTENV=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LUMEN_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("LUMEN_TEST_DOTENV"))
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Processing.Quality = 1.2
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Processing.OutputFormat = "avif"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Processing.Engine = "magic"
	assert.Error(t, cfg.Validate())
}

func TestSnapshotExcludesCredentials(t *testing.T) {
	cfg := Default()
	cfg.Remote.Password = "secret"
	cfg.AI.APIKey = "key"

	raw, err := cfg.Snapshot()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
	assert.NotContains(t, string(raw), "key\"")

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, 0.8, m["quality"])
}

func TestApplySnapshot(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplySnapshot(json.RawMessage(`{"quality":0.4,"outputFormat":"webp","theme":"dark"}`)))
	assert.Equal(t, 0.4, cfg.Processing.Quality)
	assert.Equal(t, "webp", cfg.Processing.OutputFormat)
	assert.Equal(t, "algorithm", cfg.Processing.Engine)

	err := cfg.ApplySnapshot(json.RawMessage(`{"quality":3}`))
	assert.Error(t, err)
	assert.Equal(t, 0.4, cfg.Processing.Quality)

	assert.NoError(t, cfg.ApplySnapshot(nil))
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Processing.Quality = 0.55
	cfg.Remote.URL = "https://dav.example.com"

	path := filepath.Join(t.TempDir(), "nested", "lumen.yml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Processing, loaded.Processing)
	assert.Equal(t, cfg.Remote.URL, loaded.Remote.URL)
}

func TestSaveProcessingKeepsEnvironmentOutOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
remote:
  username: alice
processing:
  engine: canvas
`), 0o600))

	t.Setenv("LUMEN_WEBDAV_URL", "https://env.example.com/dav")
	t.Setenv("LUMEN_WEBDAV_PASSWORD", "env-password")
	t.Setenv("LUMEN_AI_API_KEY", "env-api-key")
	t.Setenv("LUMEN_HISTORY_DIR", "/tmp/env-history")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "env-password", cfg.Remote.Password)
	require.NoError(t, cfg.ApplySnapshot(json.RawMessage(`{"quality":0.5}`)))
	require.NoError(t, cfg.SaveProcessing(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, leaked := range []string{"env-password", "env-api-key", "env.example.com", "env-history"} {
		assert.NotContains(t, string(data), leaked)
	}

	onDisk, err := loadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, onDisk.Processing.Quality)
	assert.Equal(t, "canvas", onDisk.Processing.Engine)
	assert.Equal(t, "alice", onDisk.Remote.Username)
}
