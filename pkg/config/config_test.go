package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/courseplanner/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "courseplanner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, config.SourceFile, cfg.Catalog.Source)
	assert.Equal(t, config.DefaultCatalogPath, cfg.Catalog.Path)
	assert.Equal(t, ',', cfg.Catalog.DelimiterRune())
	assert.Equal(t, uint64(16_000_000), cfg.Catalog.MaxFileSizeBytes())
	assert.Equal(t, 30*time.Second, cfg.Catalog.LoadTimeout)
	assert.Equal(t, config.DefaultSnapshotPath, cfg.Snapshot.Path)
	assert.Equal(t, slog.LevelWarn, cfg.Logging.SlogLevel())
	assert.Equal(t, config.FormatText, cfg.Logging.Format)
	assert.Equal(t, config.FormatTable, cfg.Display.Format)
	assert.True(t, cfg.Display.Color)
	assert.Empty(t, cfg.Telemetry.OTLPEndpoint)
	assert.InDelta(t, 1.0, cfg.Telemetry.SampleRatio, 0)
	assert.Equal(t, 5*time.Second, cfg.Telemetry.ShutdownTimeout)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
catalog:
  source: pebble
  store_dir: /var/lib/courseplanner
  delimiter: ";"
  max_file_size: 2MiB
logging:
  level: debug
  format: json
display:
  format: yaml
  color: false
metrics:
  addr: ":9464"
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, config.SourcePebble, cfg.Catalog.Source)
	assert.Equal(t, "/var/lib/courseplanner", cfg.Catalog.StoreDir)
	assert.Equal(t, ';', cfg.Catalog.DelimiterRune())
	assert.Equal(t, uint64(2<<20), cfg.Catalog.MaxFileSizeBytes())
	assert.Equal(t, slog.LevelDebug, cfg.Logging.SlogLevel())
	assert.Equal(t, config.FormatJSON, cfg.Logging.Format)
	assert.Equal(t, config.FormatYAML, cfg.Display.Format)
	assert.False(t, cfg.Display.Color)
	assert.Equal(t, ":9464", cfg.Metrics.Addr)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("COURSEPLANNER_CATALOG_PATH", "/data/abcu.csv")
	t.Setenv("COURSEPLANNER_LOGGING_LEVEL", "error")
	t.Setenv("COURSEPLANNER_TELEMETRY_OTLP_ENDPOINT", "collector:4317")

	cfg, err := config.LoadConfig(writeConfig(t, "catalog:\n  path: from-file.csv\n"))
	require.NoError(t, err)

	assert.Equal(t, "/data/abcu.csv", cfg.Catalog.Path)
	assert.Equal(t, slog.LevelError, cfg.Logging.SlogLevel())
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"unknown source", "catalog:\n  source: ftp\n", config.ErrInvalidSource},
		{"postgres without dsn", "catalog:\n  source: postgres\n", config.ErrMissingDSN},
		{"pebble without dir", "catalog:\n  source: pebble\n  store_dir: \"\"\n", config.ErrMissingStoreDir},
		{"empty path", "catalog:\n  path: \"\"\n", config.ErrMissingPath},
		{"long delimiter", "catalog:\n  delimiter: \"::\"\n", config.ErrInvalidDelimiter},
		{"bad size", "catalog:\n  max_file_size: lots\n", config.ErrInvalidMaxFileSize},
		{"bad timeout", "catalog:\n  load_timeout: 0s\n", config.ErrInvalidTimeout},
		{"bad level", "logging:\n  level: chatty\n", config.ErrInvalidLogLevel},
		{"bad log format", "logging:\n  format: xml\n", config.ErrInvalidLogFormat},
		{"bad display format", "display:\n  format: html\n", config.ErrInvalidFormat},
		{"bad sample ratio", "telemetry:\n  sample_ratio: 1.5\n", config.ErrInvalidSampleRatio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.want)
		})
	}
}
