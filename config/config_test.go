package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/maintenance-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "America/Sao_Paulo", cfg.Clock.Timezone)
	assert.True(t, cfg.Ledger.ReportAttribution)
	assert.Len(t, cfg.Sectors, 5)
}

func TestLoad_FileAndEnv(t *testing.T) {
	// GIVEN: A config file and an environment override
	// WHEN: Loading
	// THEN: File values apply, env wins over file
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "maint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
ledger:
  report_attribution: false
sectors:
  - label: Norte
    aliases: ["Ana Lima", "ACME"]
`), 0o600))
	t.Setenv("MAINT_SERVER_PORT", "9100")
	t.Setenv("MAINT_SERVER_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.False(t, cfg.Ledger.ReportAttribution)
	require.Len(t, cfg.Sectors, 1)
	assert.Equal(t, "Norte", cfg.Sectors[0].Label)
	assert.Equal(t, []string{"Ana Lima", "ACME"}, cfg.Sectors[0].Aliases)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoad_InvalidDriver(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MAINT_DATABASE_DRIVER", "oracle")

	_, err := config.Load("")
	assert.Error(t, err)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLogConfig_NewLogger(t *testing.T) {
	logger, err := config.LogConfig{Level: "debug", Format: "json"}.NewLogger()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	_, err = config.LogConfig{Level: "loud"}.NewLogger()
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
