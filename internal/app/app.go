package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/alerting"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/config"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/fetcher"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/logging"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/monitor"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/predictor"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/profile"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app"), Out: os.Stdout}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	if a.Config.Database.DSN == "" {
		return nil, nil
	}
	return storage.Open(ctx, a.Config.Database)
}

func (a *App) loadProfile() (profile.Profile, error) {
	p, err := profile.LoadFile(a.Config.Profile.Path, a.Config.Profile.User)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

func (a *App) newPredictor() *predictor.Model {
	return predictor.NewModel(predictor.Options{
		BaselineCoreTemp: a.Config.Predictor.BaselineCoreTemp,
		SkinWindow:       a.Config.Predictor.SkinWindow,
	})
}

// newSources builds the configured acquisition sources.
func (a *App) newSources() ([]monitor.Source, error) {
	acq := a.Config.Acquisition

	// the weather service is the only writer of the ambient channels when enabled
	var exclude []monitor.Channel
	if acq.Ambient.Enabled {
		exclude = monitor.AmbientChannels
	}

	var sources []monitor.Source
	switch acq.Source {
	case config.SourceSimulated:
		sources = append(sources, monitor.NewSimulator(monitor.SimulatorOptions{
			Interval: acq.SampleInterval,
			Strain:   acq.Strain,
			Seed:     acq.Seed,
			Exclude:  exclude,
		}, a.Logger))
	case config.SourceMQTT:
		sources = append(sources, monitor.NewMQTTSource(monitor.MQTTOptions{
			Broker:         acq.MQTT.Broker,
			ClientID:       acq.MQTT.ClientID,
			Topic:          acq.MQTT.Topic,
			Username:       acq.MQTT.Username,
			Password:       acq.MQTT.Password,
			QoS:            acq.MQTT.QoS,
			ConnectTimeout: acq.MQTT.ConnectTimeout,
			Exclude:        exclude,
		}, a.Logger))
	case config.SourceReplay:
		readings, err := monitor.LoadRecordingFile(acq.Replay.Path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, monitor.NewReplaySource(readings, monitor.ReplayOptions{Speed: acq.Replay.Speed, Exclude: exclude}, a.Logger))
	default:
		return nil, fmt.Errorf("unknown acquisition source %q", acq.Source)
	}

	if acq.Ambient.Enabled {
		weather := fetcher.NewWeather(fetcher.WeatherOptions{
			BaseURL:   acq.Ambient.BaseURL,
			Latitude:  acq.Ambient.Latitude,
			Longitude: acq.Ambient.Longitude,
			Timeout:   acq.Ambient.Timeout,
			UserAgent: acq.Ambient.UserAgent,
		}, a.Logger)
		sources = append(sources, monitor.NewAmbientSource(weather, acq.Ambient.Interval, a.Logger))
	}
	return sources, nil
}

// RunOptions configure the run command.
type RunOptions struct {
	// Interactive stops the run when a line "q" is read from Input.
	Interactive bool
	Input       io.Reader
}

// ExportOptions hold parameters for exporting assessment history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// ReplayOptions configure an offline replay.
type ReplayOptions struct {
	Path   string
	Output string
}
