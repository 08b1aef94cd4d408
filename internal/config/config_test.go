package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())
	require.Equal(t, 14, cfg.Library.LoanPeriodDays)
	require.Equal(t, 1.0, cfg.Library.DailyFineRate)
	require.Equal(t, 7, cfg.Library.ReservationDays)
	require.Equal(t, "0 8 * * *", cfg.Library.DailyNotifySpec)
	require.Equal(t, "0 9 * * 1", cfg.Library.WeeklyReportSpec)
	require.Equal(t, "admin", cfg.Bootstrap.AdminUsername)
	require.Equal(t, "admin@library.com", cfg.Bootstrap.AdminEmail)
	require.Equal(t, time.Hour, cfg.Redis.CacheTTL)
	require.Equal(t, "migrations", cfg.Database.MigrationsPath)
	require.Empty(t, cfg.Database.DSN)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SERVER_PORT", "9001")
	t.Setenv("LIBRARY_LOAN_PERIOD_DAYS", "21")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9001, cfg.Server.Port)
	require.Equal(t, 21, cfg.Library.LoanPeriodDays)
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	overlay := []byte("server:\n  port: 9100\nlibrary:\n  daily_fine_rate: 0.5\n")
	require.NoError(t, os.WriteFile(path, overlay, 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, 0.5, cfg.Library.DailyFineRate)
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	require.Error(t, err)
}
