package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "telegram:\n  token: abc\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4000, cfg.Notify.MaxMessageLength)
	require.Equal(t, 7, cfg.Notify.DigestDays)
	require.Equal(t, "09:00", cfg.Schedule.AlertTime)
	require.Equal(t, time.Minute, cfg.Schedule.Grace)
	require.Equal(t, []float64{0.90, 0.95}, cfg.Alerts.Thresholds24h)
	require.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "telegram:\n  token: abc\n")
	t.Setenv("VOPB_NOTIFY_DIGEST_DAYS", "3")
	t.Setenv("VOPB_SCHEDULE_ALERT_TIME", "07:15")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Notify.DigestDays)
	require.Equal(t, "07:15", cfg.Schedule.AlertTime)
}

func TestLoadTokenFile(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenPath, []byte("secret-token\n"), 0o600))
	path := writeConfig(t, "telegram:\n  token_file: "+tokenPath+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "secret-token", cfg.Telegram.Token)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing token":       "telegram:\n  enabled: true\n",
		"bad alert time":      "telegram:\n  token: x\nschedule:\n  alert_time: noon\n",
		"threshold too large": "telegram:\n  token: x\nalerts:\n  thresholds_24h: [1.5]\n",
		"duplicate threshold": "telegram:\n  token: x\nalerts:\n  thresholds_30d: [0.9, 0.9]\n",
		"zero message length": "telegram:\n  token: x\nnotify:\n  max_message_length: 0\n",
		"unknown driver":      "telegram:\n  token: x\ndatabase:\n  driver: mysql\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestYAMLRedactsSecrets(t *testing.T) {
	cfg := Config{
		Telegram: TelegramConfig{Token: "very-secret"},
		Database: DatabaseConfig{DSN: "postgres://u:p@h/db"},
	}
	out, err := cfg.YAML()
	require.NoError(t, err)
	require.False(t, strings.Contains(string(out), "very-secret"))
	require.False(t, strings.Contains(string(out), "u:p@h"))
	require.Contains(t, string(out), redacted)
	require.Equal(t, "very-secret", cfg.Telegram.Token)
}
