package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "marketlens.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.Model)
	assert.Equal(t, 1024, cfg.Anthropic.MaxTokens)
	assert.Equal(t, 30, cfg.Anthropic.TimeoutSecs)
	assert.InDelta(t, 2.0, cfg.Anthropic.RequestsPerSec, 0.001)
	assert.InDelta(t, 1_000_000, cfg.Parser.MaxPrice, 0.001)
	assert.InDelta(t, 50, cfg.Parser.MaxPercent, 0.001)
	assert.Equal(t, 3, cfg.Workflow.MaxRecoveryAttempts)
	assert.Equal(t, 30, cfg.Workflow.ErrorCooldownSecs)
	assert.Equal(t, 30*time.Second, cfg.Workflow.ErrorCooldown())
	assert.Equal(t, 2, cfg.Workflow.Retries)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/marketlens
log:
  level: debug
  format: console
server:
  port: 9090
parser:
  max_percent: 75
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/marketlens", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 75, cfg.Parser.MaxPercent, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Workflow.MaxRecoveryAttempts)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("MARKETLENS_STORE_DRIVER", "postgres")
	t.Setenv("MARKETLENS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("MARKETLENS_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "marketlens.db"
	cfg.Parser.MaxPrice = 1_000_000
	cfg.Parser.MaxPercent = 50
	cfg.Workflow.MaxRecoveryAttempts = 3
	cfg.Workflow.ErrorCooldownSecs = 30
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateParse_Offline(t *testing.T) {
	cfg := validDefaults()
	// No API key needed for offline parsing.
	assert.NoError(t, cfg.Validate("parse"))
}

func TestValidateRun_MissingKey(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateRun_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Anthropic.Model = "claude-sonnet-4-5-20250929"

	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Anthropic.Model = "claude-sonnet-4-5-20250929"
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("parse")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/marketlens"
	assert.NoError(t, cfg.Validate("parse"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateRecoveryAttemptBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Workflow.MaxRecoveryAttempts = 0
	err := cfg.Validate("parse")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_recovery_attempts must be between 1 and 10")

	cfg.Workflow.MaxRecoveryAttempts = 11
	err = cfg.Validate("parse")
	assert.Error(t, err)

	cfg.Workflow.MaxRecoveryAttempts = 10
	assert.NoError(t, cfg.Validate("parse"))
}

func TestValidateParserBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Parser.MaxPrice = 0
	err := cfg.Validate("parse")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parser.max_price")

	cfg.Parser.MaxPrice = 1_000_000
	cfg.Parser.MaxPercent = -1
	err = cfg.Validate("parse")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parser.max_percent")
}
