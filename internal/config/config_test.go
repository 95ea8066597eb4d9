package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "gitteh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.GreaterOrEqual(t, cfg.Runtime.Workers, 1)
	assert.LessOrEqual(t, cfg.Runtime.Workers, 8)
	assert.Equal(t, 30*time.Second, cfg.Runtime.ShutdownTimeout)
	assert.Equal(t, LogLevelInfo, cfg.Logging.Level)
	assert.Equal(t, LogFormatText, cfg.Logging.Format)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Empty(t, cfg.Metrics.Address)
	assert.False(t, cfg.Revalidate.Enabled())
	assert.NoError(t, ValidateConfig(cfg))
}

func TestLoad_FullFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GITTEH_TEST_REPO", "/srv/repo")

	path := writeConfig(t, ".", `
runtime:
  workers: 3
  shutdown_timeout: 5s
logging:
  level: DEBUG
  format: json
metrics:
  enabled: true
repository:
  path: ${GITTEH_TEST_REPO}
revalidate:
  watch: true
  interval: 2s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Runtime.Workers)
	assert.Equal(t, 5*time.Second, cfg.Runtime.ShutdownTimeout)
	assert.Equal(t, LogLevelDebug, cfg.Logging.Level)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)
	assert.Equal(t, ":9090", cfg.Metrics.Address)
	assert.Equal(t, "/srv/repo", cfg.Repository.Path)
	assert.True(t, cfg.Revalidate.Enabled())
	assert.Equal(t, 250*time.Millisecond, cfg.Revalidate.Debounce)
}

func TestLoad_EnvFiles(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Cleanup(func() {
		_ = os.Unsetenv("GITTEH_TEST_ENV_WORKERS")
		_ = os.Unsetenv("GITTEH_TEST_ENV_LEVEL")
	})

	require.NoError(t, os.WriteFile(".env", []byte("GITTEH_TEST_ENV_WORKERS=6\n"), 0o600))
	require.NoError(t, os.WriteFile(".env.local", []byte("GITTEH_TEST_ENV_WORKERS=9\nGITTEH_TEST_ENV_LEVEL=warn\n"), 0o600))

	path := writeConfig(t, dir, `
runtime:
  workers: ${GITTEH_TEST_ENV_WORKERS}
logging:
  level: ${GITTEH_TEST_ENV_LEVEL}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Runtime.Workers, ".env wins over .env.local")
	assert.Equal(t, LogLevelWarn, cfg.Logging.Level)
}

func TestLoad_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load("missing.yaml")
	require.Error(t, err)
	assert.True(t, gerrors.IsCategory(err, gerrors.CategoryConfig))

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"unknown key", "runtime:\n  threads: 2\n", ""},
		{"too many workers", "runtime:\n  workers: 1000\n", "runtime.workers"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"bad format", "logging:\n  format: xml\n", "logging.format"},
		{"bad metrics address", "metrics:\n  enabled: true\n  address: nope\n", "metrics.address"},
		{"negative interval", "revalidate:\n  interval: -1s\n", "revalidate.interval"},
		{"interval below debounce", "revalidate:\n  interval: 10ms\n  debounce: 1s\n", "revalidate.interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.body))
			require.Error(t, err)
			assert.True(t, gerrors.IsCategory(err, gerrors.CategoryConfig), "got %v", err)
			if tt.field != "" {
				ge, ok := gerrors.As(err)
				require.True(t, ok)
				assert.Equal(t, tt.field, ge.Context["field"])
			}
		})
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOrDefault(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Repository.Path = "/tmp/repo"
	out, err := Marshal(cfg)
	require.NoError(t, err)

	back, err := Parse(strings.NewReader(string(out)))
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, LogLevelWarn, NormalizeLogLevel(" Warning "))
	assert.Equal(t, LogLevel(""), NormalizeLogLevel("trace"))
	assert.Equal(t, LogFormatJSON, NormalizeLogFormat("JSON"))
	assert.Equal(t, LogFormat(""), NormalizeLogFormat("logfmt"))

	assert.Equal(t, slog.LevelDebug, LogLevelDebug.Slog())
	assert.Equal(t, slog.LevelError, LogLevelError.Slog())
	assert.Equal(t, slog.LevelInfo, LogLevel("").Slog())
}

func TestNewLogger(t *testing.T) {
	var buf strings.Builder
	logger := LoggingConfig{Level: LogLevelWarn, Format: LogFormatJSON}.NewLogger(&buf, false)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	verbose := LoggingConfig{Level: LogLevelError, Format: LogFormatText}.NewLogger(&buf, true)
	verbose.Debug("debug line")
	assert.Contains(t, buf.String(), "msg=\"debug line\"")
}
