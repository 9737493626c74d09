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

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ADSBEXCHANGE_RAPIDAPI_KEY", "")
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.CacheTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, time.Minute, cfg.Scheduler.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.FetchTimeout)
	assert.Equal(t, "default", cfg.Scheduler.DefaultTenant)
	require.NotNil(t, cfg.Scheduler.AutoCreateDefaultTenant)
	assert.True(t, *cfg.Scheduler.AutoCreateDefaultTenant)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, "skytrace.jobs.completed", cfg.NATS.Subject)

	require.Len(t, cfg.Scheduler.Jobs, 1)
	job := cfg.Scheduler.Jobs[0]
	assert.Equal(t, DefaultJobID, job.ID)
	assert.Equal(t, "adsbexchange", job.ClientType)
	assert.Equal(t, 30, job.IntervalMinutes)
	assert.Equal(t, "default", job.Tenant)
	assert.Equal(t, true, job.Config["use_archive_refresh"])
}

func TestLoad_ExplicitEmptyJobList(t *testing.T) {
	path := writeConfig(t, "scheduler:\n  jobs: []\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Scheduler.Jobs)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ADSBEXCHANGE_RAPIDAPI_KEY", "from-env")
	t.Setenv("DATABASE_DSN", "file:test.db")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	path := writeConfig(t, "adsbexchange:\n  rapidapi_key: from-file\ndatabase:\n  driver: sqlite\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.ADSBExchange.RapidAPIKey)
	assert.Equal(t, "file:test.db", cfg.Database.DSN)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "Unknown log level", body: "log:\n  level: verbose\n"},
		{name: "Unknown log format", body: "log:\n  format: xml\n"},
		{name: "Unknown driver", body: "database:\n  driver: oracle\n"},
		{name: "Zero job interval", body: "scheduler:\n  jobs:\n    - id: a\n      client_type: synthetic\n      interval_minutes: 0\n"},
		{name: "Job without client", body: "scheduler:\n  jobs:\n    - id: a\n      interval_minutes: 5\n"},
		{name: "Tenant without slug", body: "scheduler:\n  tenants:\n    - name: Nameless\n"},
		{name: "Malformed yaml", body: "server: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)
	assert.Len(t, cfg.Scheduler.Jobs, 2)
	assert.True(t, cfg.Scheduler.PersistJobs)
	require.NotNil(t, cfg.Scheduler.Jobs[1].Enabled)
	assert.False(t, *cfg.Scheduler.Jobs[1].Enabled)
}
