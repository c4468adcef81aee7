package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/fetcher"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/logging"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/scheduler"
)

// AmbientChannels are the channels an AmbientSource writes. Other sources
// running alongside one must exclude them.
var AmbientChannels = []Channel{AmbientTemperature, Humidity}

// AmbientSource polls a weather service for the ambient temperature and
// humidity channels, for wearables that lack environment sensors.
type AmbientSource struct {
	fetcher fetcher.ConditionsFetcher
	sched   *scheduler.Scheduler
	logger  zerolog.Logger
}

// NewAmbientSource constructs a polling ambient source.
func NewAmbientSource(f fetcher.ConditionsFetcher, interval time.Duration, logger zerolog.Logger) *AmbientSource {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &AmbientSource{
		fetcher: f,
		sched:   scheduler.New("ambient", scheduler.Options{Interval: interval}, logger),
		logger:  logging.Component(logger, "ambient_source"),
	}
}

// Name implements Source.
func (a *AmbientSource) Name() string { return "ambient" }

// Start fetches once immediately so the ambient channels are populated
// before the first prediction, then polls on the configured interval.
func (a *AmbientSource) Start(ctx context.Context, streams *Streams) error {
	if err := a.poll(ctx, streams); err != nil {
		a.logger.Warn().Err(err).Msg("initial ambient fetch failed")
	}
	return a.sched.Start(ctx, func(ctx context.Context, _ time.Time) error {
		return a.poll(ctx, streams)
	})
}

// Stop implements Source.
func (a *AmbientSource) Stop() { a.sched.Stop() }

// Done implements Source.
func (a *AmbientSource) Done() <-chan struct{} { return a.sched.Done() }

// poll stamps the reading when the fetch returns, not when it was issued.
func (a *AmbientSource) poll(ctx context.Context, streams *Streams) error {
	cond, err := a.fetcher.FetchConditions(ctx)
	if err != nil {
		return fmt.Errorf("fetch ambient conditions: %w", err)
	}
	reading := Reading{
		Time: time.Now(),
		Values: map[Channel]float64{
			AmbientTemperature: cond.TemperatureC,
			Humidity:           cond.RelativeHumidity,
		},
	}
	return reading.Apply(streams)
}

var _ Source = (*AmbientSource)(nil)
