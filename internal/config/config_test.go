package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcus-data/radarvol/internal/fsutil"
)

func writeConfig(t *testing.T, body string) (fsutil.FileSystem, string) {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("radarvol.json", []byte(body), 0644))
	return fs, "radarvol.json"
}

func TestLoadPartialConfig(t *testing.T) {
	fs, path := writeConfig(t, `{"site": "fld", "workers": 8}`)

	cfg, err := Load(fs, path)
	require.NoError(t, err)

	assert.Equal(t, "fld", cfg.GetSite())
	assert.Equal(t, 8, cfg.GetWorkers())
	// Unset fields fall back to defaults.
	assert.Equal(t, "https://opendata.dwd.de/weather/radar/sites/sweep_vol_z/", cfg.GetBaseURL())
	assert.Equal(t, 24*time.Hour, cfg.GetCacheRetention())
	assert.Equal(t, []string{"dbzh"}, cfg.GetMoments())
}

func TestLoadFullConfig(t *testing.T) {
	fs, path := writeConfig(t, `{
		"base_url": "https://example.org/radar/",
		"site": "pro",
		"workers": 2,
		"moments": ["dbzh", "vradh"],
		"cache_path": "/var/cache/sweeps.db",
		"cache_retention": "72h",
		"output_dir": "/tmp/plots"
	}`)

	cfg, err := Load(fs, path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.org/radar/", cfg.GetBaseURL())
	assert.Equal(t, "pro", cfg.GetSite())
	assert.Equal(t, 2, cfg.GetWorkers())
	assert.Equal(t, []string{"dbzh", "vradh"}, cfg.GetMoments())
	assert.Equal(t, "/var/cache/sweeps.db", cfg.GetCachePath())
	assert.Equal(t, 72*time.Hour, cfg.GetCacheRetention())
	assert.Equal(t, "/tmp/plots", cfg.GetOutputDir())
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	_, err := Load(fs, "radarvol.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".json")
}

func TestLoadMissingFile(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	_, err := Load(fs, "absent.json")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"base url without slash", `{"base_url": "https://example.org/radar"}`, "must end in /"},
		{"zero workers", `{"workers": 0}`, "workers"},
		{"bad retention", `{"cache_retention": "yesterday"}`, "cache_retention"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, path := writeConfig(t, tt.body)
			_, err := Load(fs, path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefaultsOnEmptyConfig(t *testing.T) {
	cfg := Empty()
	assert.Equal(t, "ess", cfg.GetSite())
	assert.Equal(t, 4, cfg.GetWorkers())
	assert.Equal(t, "radarvol-cache.db", cfg.GetCachePath())
	assert.Equal(t, ".", cfg.GetOutputDir())
}
