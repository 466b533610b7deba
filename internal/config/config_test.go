package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanhead/internal/fsutil"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigParsesHeads(t *testing.T) {
	path := writeConfig(t, `{
		"store_path": "/var/lib/scanhead/registry.db",
		"default_scan_rate_hz": 500,
		"heads": [
			{"serial": 100, "user_id": 1, "window_top_in": 4, "window_bottom_in": -4, "window_left_in": -3, "window_right_in": 3}
		]
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/scanhead/registry.db", cfg.GetStorePath())
	assert.Equal(t, 500.0, cfg.GetDefaultScanRateHz())
	require.Len(t, cfg.Heads, 1)
	assert.True(t, cfg.Heads[0].HasWindow())
}

func TestLoadConfigDefaultsOnPartialFile(t *testing.T) {
	path := writeConfig(t, `{}`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.GetStorePath())
	assert.Equal(t, 100.0, cfg.GetDefaultScanRateHz())
	assert.Equal(t, 10, cfg.GetConnectTimeoutSeconds())
}

func TestLoadConfigRejectsNonJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigRejectsDuplicateSerial(t *testing.T) {
	path := writeConfig(t, `{"heads": [{"serial": 1, "user_id": 1}, {"serial": 1, "user_id": 2}]}`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidateRejectsNonPositiveScanRate(t *testing.T) {
	cfg := EmptyHostConfig()
	rate := -1.0
	cfg.DefaultScanRateHz = &rate
	assert.Error(t, cfg.Validate())
}

func TestLoadConfigFSReadsFromMemoryFilesystem(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("/etc/scanhead/config.json", []byte(`{"default_scan_rate_hz": 250}`), 0o600))

	cfg, err := LoadConfigFS(fs, "/etc/scanhead/config.json")
	require.NoError(t, err)
	assert.Equal(t, 250.0, cfg.GetDefaultScanRateHz())
}

func TestLoadConfigFSPropagatesMissingFile(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	_, err := LoadConfigFS(fs, "/etc/scanhead/missing.json")
	assert.Error(t, err)
}
