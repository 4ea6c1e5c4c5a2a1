package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewire/notifyhub/pkg/config"
)

const minimalConfig = `
service_name = "notify-dispatcher"
environment = "test"

[kafka]
brokers = ["localhost:9092"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "notify-dispatcher", cfg.ServiceName)
	assert.Equal(t, 2*time.Minute, cfg.Window.Duration())
	assert.Equal(t, 30*time.Second, cfg.Window.SweepInterval())
	assert.Equal(t, 50, cfg.Window.MaxBatchSize)
	assert.Equal(t, "notify-dispatch-critical", cfg.Tiers.Critical.GroupID)
	assert.Equal(t, 3, cfg.Tiers.Critical.Partitions)
	assert.Equal(t, 3, cfg.Tiers.Critical.Concurrency)
	assert.Equal(t, 5, cfg.Tiers.High.Partitions)
	assert.Equal(t, 2, cfg.Tiers.High.Concurrency)
	assert.Equal(t, 2, cfg.Tiers.Low.Partitions)
	assert.Equal(t, 1, cfg.Tiers.Low.Concurrency)
	assert.Equal(t, "notify-deliver-push", cfg.Delivery.Push.GroupID)
	assert.Equal(t, 5, cfg.Fallback.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Fallback.RetryAfter())

	// SMS backs off harder than the default policy out of the box.
	sms := cfg.Retry.RetryFor("sms")
	assert.Equal(t, 3, sms.MaxRetries)
	assert.Equal(t, 2*time.Second, sms.InitialDelay)
	assert.Equal(t, 3.0, sms.Multiplier)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("NOTIFY_WINDOW_MAX_BATCH_SIZE", "10")

	cfg, err := config.Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Window.MaxBatchSize)
}

func TestLoadRejectsSweepLongerThanWindow(t *testing.T) {
	t.Parallel()

	body := minimalConfig + `
[window]
duration_ms = 10000
sweep_interval_ms = 20000
`
	_, err := config.Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep interval")
}

func TestRetryForMergesOverrides(t *testing.T) {
	t.Parallel()

	cfg := config.RetryConfig{
		Default: config.RetryPolicyConfig{
			MaxRetries:     3,
			InitialDelayMS: 1000,
			MaxDelayMS:     60000,
			Multiplier:     2,
		},
		Channels: map[string]config.RetryPolicyConfig{
			"sms": {InitialDelayMS: 2000, Multiplier: 3},
		},
	}

	def := cfg.RetryFor("EMAIL")
	assert.Equal(t, 3, def.MaxRetries)
	assert.Equal(t, time.Second, def.InitialDelay)
	assert.Equal(t, time.Minute, def.MaxDelay)
	assert.Equal(t, 2.0, def.Multiplier)

	sms := cfg.RetryFor("SMS")
	assert.Equal(t, 3, sms.MaxRetries, "unset override fields fall back to the default policy")
	assert.Equal(t, 2*time.Second, sms.InitialDelay)
	assert.Equal(t, time.Minute, sms.MaxDelay)
	assert.Equal(t, 3.0, sms.Multiplier)
}
