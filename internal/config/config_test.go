package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shiki0138/hotelbooking-sub004/internal/config"
	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ParsesDurationsAndSections(t *testing.T) {
	path := writeConfig(t, `
HTTPAddress: ":9090"
Namespace: "booking"
Limits:
  GlobalPerMinute: 120
  MaxPerDay: 5
Breaker:
  FailureThreshold: 3
  CoolDown: "45s"
Retry:
  MaxRetries: 2
  RetryBackoff: "250ms"
  PerChannelTimeout: "2s"
Advisor:
  Enabled: true
  Timeout: "150ms"
DedupTTL: "10m"
InboxTTL: "720h"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddress)
	assert.Equal(t, "booking", cfg.Namespace)
	assert.Equal(t, 120, cfg.Limits.GlobalPerMinute)
	assert.Equal(t, 5, cfg.Limits.MaxPerDay)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 45*time.Second, cfg.Breaker.CoolDown.Std())
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.RetryBackoff.Std())
	assert.Equal(t, 2*time.Second, cfg.Retry.PerChannelTimeout.Std())
	assert.True(t, cfg.Advisor.Enabled)
	assert.Equal(t, 150*time.Millisecond, cfg.Advisor.Timeout.Std())
	assert.Equal(t, 10*time.Minute, cfg.DedupTTL.Std())
	assert.Equal(t, 720*time.Hour, cfg.InboxTTL.Std())
}

func TestLoad_DefaultsFillGaps(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, config.DefaultHTTPAddress, cfg.HTTPAddress)
	assert.Equal(t, config.DefaultNamespace, cfg.Namespace)
	assert.Equal(t, config.DefaultGlobalPerMinute, cfg.Limits.GlobalPerMinute)
	assert.Equal(t, config.DefaultCoolDown, cfg.Breaker.CoolDown.Std())
	assert.Equal(t, config.DefaultProbeSchedule, cfg.Breaker.ProbeSchedule)
	assert.Equal(t, config.DefaultRetryBackoff, cfg.Retry.RetryBackoff.Std())
	assert.Equal(t, config.DefaultDrainInterval, cfg.Queue.DrainInterval.Std())
	assert.Equal(t, config.DefaultBatchPause, cfg.Batch.Pause.Std())
	assert.Equal(t, config.DefaultDedupTTL, cfg.DedupTTL.Std())
	assert.Equal(t, notify.DefaultScoreThresholds, cfg.PriorityThresholds)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
HTTPAddress: ":9090"
Breaker:
  CoolDown: "45s"
`)
	t.Setenv("HTTP_ADDRESS", ":7070")
	t.Setenv("BREAKER_COOLDOWN", "90s")
	t.Setenv("MAX_PER_DAY", "7")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.HTTPAddress)
	assert.Equal(t, 90*time.Second, cfg.Breaker.CoolDown.Std())
	assert.Equal(t, 7, cfg.Limits.MaxPerDay)
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
Breaker:
  CoolDown: "soon"
`)
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/app.yaml")
	assert.Error(t, err)
}
