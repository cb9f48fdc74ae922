package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// keep a stray .env in the package dir from leaking in
	t.Chdir(t.TempDir())
	for _, key := range []string{"PORT", "STORE_DRIVER", "FOLLOWUP_INTERVAL", "FOLLOWUP_RUN_ON_START", "NOTIFY_RATE_PER_SECOND", "BASE_URL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "5350", cfg.Port)
	assert.Equal(t, "json", cfg.StoreDriver)
	assert.Equal(t, "jobs.json", cfg.JobsFile)
	assert.Equal(t, time.Hour, cfg.FollowUpInterval)
	assert.False(t, cfg.FollowUpRunOnStart)
	assert.Equal(t, 10*time.Second, cfg.NotifyMessageTimeout)
	assert.Equal(t, 20*time.Second, cfg.NotifyAttachmentTimeout)
	assert.Zero(t, cfg.NotifyRatePerSecond)
	assert.Equal(t, "http://localhost:5350", cfg.BaseURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("FOLLOWUP_INTERVAL", "15m")
	t.Setenv("FOLLOWUP_RUN_ON_START", "true")
	t.Setenv("NOTIFY_RATE_PER_SECOND", "0.5")
	t.Setenv("BASE_URL", "https://pulse.example.com/")

	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 15*time.Minute, cfg.FollowUpInterval)
	assert.True(t, cfg.FollowUpRunOnStart)
	assert.Equal(t, 0.5, cfg.NotifyRatePerSecond)
	assert.Equal(t, "https://pulse.example.com", cfg.BaseURL)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("X_DURATION", "soon")
	t.Setenv("X_NEGATIVE", "-5s")
	t.Setenv("X_BOOL", "maybe")
	t.Setenv("X_FLOAT", "-1")

	assert.Equal(t, time.Minute, getDuration("X_DURATION", time.Minute))
	assert.Equal(t, time.Minute, getDuration("X_NEGATIVE", time.Minute))
	assert.True(t, getBool("X_BOOL", true))
	assert.Equal(t, 2.0, getFloat("X_FLOAT", 2))
}

func TestDotEnvIsRead(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/.env", []byte("JOBS_FILE=/data/from-dotenv.json\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("JOBS_FILE", "")
	require.NoError(t, os.Unsetenv("JOBS_FILE"))

	cfg := Load()
	assert.Equal(t, "/data/from-dotenv.json", cfg.JobsFile)
}
