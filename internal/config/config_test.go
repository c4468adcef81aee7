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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "heatwatch", cfg.App.Name)
	assert.Equal(t, "test", cfg.App.Environment)
	assert.Equal(t, SourceSimulated, cfg.Acquisition.Source)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.PredictionInterval)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.PersistenceInterval)
	assert.Equal(t, time.Second, cfg.Scheduler.Granularity)
	assert.Equal(t, 37.6, cfg.Predictor.BaselineCoreTemp)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, filepath.Join("data", "all_data.csv"), cfg.Persistence.DataPath())
	assert.Empty(t, cfg.Persistence.ChartPath())
	assert.Equal(t, []string{"telegram"}, cfg.Alerting.Channels)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
acquisition:
  source: replay
  replay:
    path: session.csv
    speed: 4
scheduler:
  prediction_interval: 2s
  persistence_interval: 10s
  granularity: 250ms
persistence:
  output_dir: out
  chart_file: risk.png
alerting:
  threshold: 0.65
  channels: telegram,log
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, SourceReplay, cfg.Acquisition.Source)
	assert.Equal(t, 4.0, cfg.Acquisition.Replay.Speed)
	assert.Equal(t, 250*time.Millisecond, cfg.Scheduler.Granularity)
	assert.Equal(t, filepath.Join("out", "risk.png"), cfg.Persistence.ChartPath())
	assert.Equal(t, 0.65, cfg.Alerting.Threshold)
	assert.Equal(t, []string{"telegram", "log"}, cfg.Alerting.Channels)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HEATWATCH_SCHEDULER_PERSISTENCE_INTERVAL", "1m")
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Scheduler.PersistenceInterval)
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		cfg, err := Load(writeConfig(t, "{}\n"))
		require.NoError(t, err)
		return cfg
	}

	cases := map[string]func(*Config){
		"prediction not shorter than persistence": func(c *Config) {
			c.Scheduler.PredictionInterval = c.Scheduler.PersistenceInterval
		},
		"granularity above one second": func(c *Config) { c.Scheduler.Granularity = 2 * time.Second },
		"unknown source":               func(c *Config) { c.Acquisition.Source = "serial" },
		"unknown driver":               func(c *Config) { c.Database.Driver = "mysql" },
		"threshold above one":          func(c *Config) { c.Alerting.Threshold = 1.5 },
		"mqtt without broker":          func(c *Config) { c.Acquisition.Source = SourceMQTT },
		"replay without path":          func(c *Config) { c.Acquisition.Source = SourceReplay },
		"telegram without token": func(c *Config) {
			c.Alerting.Telegram.Enabled = true
			c.Alerting.Telegram.ChatID = "chat"
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base(t)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 500}}
	assert.Equal(t, 500, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 20, cfg.ResolveMaxPoints(20))
}
