package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crednest/loan-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "loan-engine", cfg.App.Name)
	assert.Equal(t, "Asia/Kolkata", cfg.Scheduler.Timezone)
	assert.Equal(t, 4, cfg.Scheduler.InterestEveryHrs)
	assert.Equal(t, "02:30", cfg.Scheduler.OverdueSweepAt)
	assert.Equal(t, 1, cfg.Scheduler.QueueEveryMins)
	assert.Equal(t, 50, cfg.Notify.BatchSize)
	assert.Equal(t, 5, cfg.Notify.MaxAttempts)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scheduler:
  timezone: UTC
  interesteveryhrs: 6
notify:
  maxattempts: 3
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
	assert.Equal(t, 6, cfg.Scheduler.InterestEveryHrs)
	assert.Equal(t, 3, cfg.Notify.MaxAttempts)
	// Untouched keys keep their defaults
	assert.Equal(t, "02:30", cfg.Scheduler.OverdueSweepAt)
}

func TestLoad_RejectsBadCadence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scheduler:
  interesteveryhrs: 0
`), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := config.Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
