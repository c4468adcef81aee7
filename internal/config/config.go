package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/logging"
)

// Acquisition source names.
const (
	SourceSimulated = "simulated"
	SourceMQTT      = "mqtt"
	SourceReplay    = "replay"
)

// Database driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// MaxGranularity bounds how long a scheduler may wait before observing a stop request.
const MaxGranularity = time.Second

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Profile     ProfileConfig     `mapstructure:"profile"`
	Acquisition AcquisitionConfig `mapstructure:"acquisition"`
	Predictor   PredictorConfig   `mapstructure:"predictor"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Export      ExportConfig      `mapstructure:"export"`
	Lifecycle   LifecycleConfig   `mapstructure:"lifecycle"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ProfileConfig points at the users file and the monitored user.
type ProfileConfig struct {
	Path string `mapstructure:"path"`
	User string `mapstructure:"user"`
}

// AcquisitionConfig selects and tunes the sensor sources.
type AcquisitionConfig struct {
	Source         string        `mapstructure:"source"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	Strain         float64       `mapstructure:"strain"`
	Seed           uint64        `mapstructure:"seed"`
	MQTT           MQTTConfig    `mapstructure:"mqtt"`
	Replay         ReplayConfig  `mapstructure:"replay"`
	Ambient        AmbientConfig `mapstructure:"ambient"`
}

// MQTTConfig covers the wearable gateway broker.
type MQTTConfig struct {
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	Topic          string        `mapstructure:"topic"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	QoS            byte          `mapstructure:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// ReplayConfig describes a recorded session to play back.
type ReplayConfig struct {
	Path  string  `mapstructure:"path"`
	Speed float64 `mapstructure:"speed"`
}

// AmbientConfig 描述环境气象拉取参数。
type AmbientConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	Latitude  float64       `mapstructure:"latitude"`
	Longitude float64       `mapstructure:"longitude"`
	Interval  time.Duration `mapstructure:"interval"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// PredictorConfig tunes the risk model.
type PredictorConfig struct {
	BaselineCoreTemp float64       `mapstructure:"baseline_core_temp"`
	SkinWindow       time.Duration `mapstructure:"skin_window"`
}

// SchedulerConfig governs prediction and persistence cadence.
type SchedulerConfig struct {
	PredictionInterval  time.Duration `mapstructure:"prediction_interval"`
	PersistenceInterval time.Duration `mapstructure:"persistence_interval"`
	Granularity         time.Duration `mapstructure:"granularity"`
	AlignToStart        bool          `mapstructure:"align_to_start"`
	StartupDelay        time.Duration `mapstructure:"startup_delay"`
}

// PersistenceConfig names the merged output files.
type PersistenceConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	DataFile  string `mapstructure:"data_file"`
	ChartFile string `mapstructure:"chart_file"`
}

// DataPath is the merged CSV destination.
func (p PersistenceConfig) DataPath() string {
	return joinOutput(p.OutputDir, p.DataFile)
}

// ChartPath is the risk chart destination, empty when disabled.
func (p PersistenceConfig) ChartPath() string {
	if p.ChartFile == "" {
		return ""
	}
	return joinOutput(p.OutputDir, p.ChartFile)
}

func joinOutput(dir, name string) string {
	if dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// DatabaseConfig encapsulates assessment history connectivity.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	Threshold float64        `mapstructure:"threshold"`
	Cooldown  time.Duration  `mapstructure:"cooldown"`
	Channels  []string       `mapstructure:"channels"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// LifecycleConfig bounds shutdown.
type LifecycleConfig struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HEATWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "heatwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("profile.path", "users.toml")

	v.SetDefault("acquisition.source", SourceSimulated)
	v.SetDefault("acquisition.sample_interval", "1s")
	v.SetDefault("acquisition.strain", 0.3)
	v.SetDefault("acquisition.mqtt.client_id", "heatwatch")
	v.SetDefault("acquisition.mqtt.topic", "heatwatch/readings")
	v.SetDefault("acquisition.mqtt.qos", 1)
	v.SetDefault("acquisition.mqtt.connect_timeout", "10s")
	v.SetDefault("acquisition.replay.speed", 1.0)
	v.SetDefault("acquisition.ambient.enabled", false)
	v.SetDefault("acquisition.ambient.base_url", "https://api.open-meteo.com/v1")
	v.SetDefault("acquisition.ambient.interval", "10m")
	v.SetDefault("acquisition.ambient.timeout", "10s")
	v.SetDefault("acquisition.ambient.user_agent", "heatwatch/1.0")

	v.SetDefault("predictor.baseline_core_temp", 37.6)
	v.SetDefault("predictor.skin_window", "30s")

	v.SetDefault("scheduler.prediction_interval", "5s")
	v.SetDefault("scheduler.persistence_interval", "30s")
	v.SetDefault("scheduler.granularity", "1s")
	v.SetDefault("scheduler.align_to_start", false)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("persistence.output_dir", "data")
	v.SetDefault("persistence.data_file", "all_data.csv")
	v.SetDefault("persistence.chart_file", "")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.threshold", 0.8)
	v.SetDefault("alerting.cooldown", "10m")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("lifecycle.shutdown_timeout", "30s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	s := c.Scheduler
	if s.PredictionInterval <= 0 {
		return fmt.Errorf("scheduler.prediction_interval must be greater than zero")
	}
	if s.PersistenceInterval <= s.PredictionInterval {
		return fmt.Errorf("scheduler.persistence_interval (%s) must be longer than scheduler.prediction_interval (%s)",
			s.PersistenceInterval, s.PredictionInterval)
	}
	if s.Granularity < 0 || s.Granularity > MaxGranularity {
		return fmt.Errorf("scheduler.granularity must not exceed %s", MaxGranularity)
	}

	switch c.Acquisition.Source {
	case SourceSimulated, SourceMQTT, SourceReplay:
	default:
		return fmt.Errorf("acquisition.source %q is not one of simulated, mqtt, replay", c.Acquisition.Source)
	}
	if c.Acquisition.SampleInterval <= 0 {
		return fmt.Errorf("acquisition.sample_interval must be greater than zero")
	}
	if c.Acquisition.Source == SourceMQTT && c.Acquisition.MQTT.Broker == "" {
		return fmt.Errorf("acquisition.mqtt.broker 必须配置")
	}
	if c.Acquisition.Source == SourceReplay && c.Acquisition.Replay.Path == "" {
		return fmt.Errorf("acquisition.replay.path 必须配置")
	}
	if c.Acquisition.Replay.Speed < 0 {
		return fmt.Errorf("acquisition.replay.speed cannot be negative")
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver %q is not one of postgres, sqlite", c.Database.Driver)
	}

	if c.Persistence.DataFile == "" {
		return fmt.Errorf("persistence.data_file must not be empty")
	}

	if c.Alerting.Threshold < 0 || c.Alerting.Threshold > 1 {
		return fmt.Errorf("alerting.threshold must be within [0, 1]")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Lifecycle.ShutdownTimeout < 0 {
		return fmt.Errorf("lifecycle.shutdown_timeout cannot be negative")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
