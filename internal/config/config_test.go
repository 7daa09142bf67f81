package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "athena.db", cfg.Store.DatabaseURL)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, 5000, cfg.Store.BusyTimeoutMs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.InDelta(t, 0.3, cfg.Match.MinDomainSimilarity, 0.001)
	assert.Equal(t, 6, cfg.Match.MinContainmentLen)
	assert.Equal(t, 5, cfg.Match.MaxContainmentExtra)
	assert.Equal(t, 6, cfg.Match.MaxNameWords)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Empty(t, cfg.Heat.ProgramTiers)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/athena
log:
  level: debug
  format: console
server:
  port: 9090
heat:
  recency_days: 14
  press_sources: [Sifted, Wired]
  tier_upgrades:
    - program: Venture Kick
      cohorts: [stage 2, stage 3]
      tier: A
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/athena", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 14, cfg.Heat.RecencyDays)
	assert.Equal(t, []string{"Sifted", "Wired"}, cfg.Heat.PressSources)
	require.Len(t, cfg.Heat.TierUpgrades, 1)
	assert.Equal(t, "Venture Kick", cfg.Heat.TierUpgrades[0].Program)
	assert.Equal(t, []string{"stage 2", "stage 3"}, cfg.Heat.TierUpgrades[0].Cohorts)
	// Defaults still apply for unset values
	assert.Equal(t, 6, cfg.Match.MinContainmentLen)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ATHENA_STORE_DRIVER", "postgres")
	t.Setenv("ATHENA_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ATHENA_SERVER_PORT=7070\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("ATHENA_SERVER_PORT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ATHENA_SERVER_PORT", "3000")

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
	cfg.Store.DatabaseURL = "athena.db"
	cfg.Store.MaxConns = 10
	cfg.Store.MinConns = 1
	cfg.Server.Port = 8080
	cfg.Match.MinDomainSimilarity = 0.3
	cfg.Match.MinContainmentLen = 6
	cfg.Match.MaxContainmentExtra = 5
	cfg.Match.MaxNameWords = 6
	return cfg
}

func TestValidateEngine(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("engine"))
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("engine")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg = validDefaults()
	cfg.Store.MinConns = 20
	err = cfg.Validate("engine")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.min_conns")
}

func TestValidateMatch(t *testing.T) {
	cfg := validDefaults()
	cfg.Match.MinDomainSimilarity = 1.5
	err := cfg.Validate("engine")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "min_domain_similarity")

	cfg = validDefaults()
	cfg.Match.MinContainmentLen = 0
	cfg.Match.MaxNameWords = 0
	err = cfg.Validate("engine")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "min_containment_len")
	assert.Contains(t, err.Error(), "max_name_words")
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
