package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  postgres:
    host: localhost
    database: ledger
    user: ledger
notifications:
  channel: webhook
  webhook:
    url: http://chat.local/send
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, 3, cfg.Sweep.PreAlertDays)
	assert.Equal(t, 3, cfg.Sweep.HorizonMonths)
	assert.Equal(t, 50, cfg.Delivery.BatchSize)
	assert.Equal(t, 3, cfg.Delivery.MaxAttempts)
	assert.Equal(t, 5*time.Minute, GetDuration(cfg.Delivery.BaseDelay))
	assert.Equal(t, 30, cfg.Ledger.DueDatePastLimitDays)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, "ar-ledger", cfg.Observability.ServiceName)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("LEDGER_TEST_DB_PASSWORD", "s3cret")
	path := writeConfig(t, `
database:
  postgres:
    host: localhost
    database: ledger
    user: ledger
    password: ${LEDGER_TEST_DB_PASSWORD}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Postgres.Password)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing postgres host",
			body:    "database:\n  postgres:\n    database: ledger\n    user: ledger\n",
			wantErr: "database.postgres.host is required",
		},
		{
			name: "unknown channel",
			body: `
database:
  postgres: {host: h, database: d, user: u}
notifications:
  channel: pigeon
`,
			wantErr: "not supported",
		},
		{
			name: "bad timezone",
			body: `
database:
  postgres: {host: h, database: d, user: u}
ledger:
  timezone: Mars/Olympus
`,
			wantErr: "ledger.timezone",
		},
		{
			name: "ses without sender",
			body: `
database:
  postgres: {host: h, database: d, user: u}
notifications:
  channel: ses
`,
			wantErr: "from_email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
