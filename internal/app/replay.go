package app

import (
	"context"
	"errors"
	"time"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/monitor"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/profile"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/service"
)

// Replay runs the prediction pipeline over a recorded session on the
// recording's own clock: a cycle every prediction interval of recorded time,
// with no waiting. The merged table is written once at the end.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	if opts.Path == "" {
		return errors.New("recording path is required")
	}

	prof, err := a.loadProfile()
	if err != nil {
		return err
	}
	readings, err := monitor.LoadRecordingFile(opts.Path)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		return errors.New("recording is empty")
	}

	svcOpts := service.OptionsFromConfig(a.Config)
	svcOpts.AlertsEnabled = false
	if opts.Output != "" {
		svcOpts.DataPath = opts.Output
	}

	mon := monitor.New(a.Logger)
	var clock time.Time
	svc := service.New(svcOpts, profile.Static(prof), mon, a.newPredictor(), nil, nil, nil, a.Logger).
		WithClock(func() time.Time { return clock })

	interval := a.Config.Scheduler.PredictionInterval
	streams := mon.Streams()
	next := 0
	for clock = readings[0].Time.Add(interval); ; clock = clock.Add(interval) {
		if err := ctx.Err(); err != nil {
			return err
		}
		for next < len(readings) && !readings[next].Time.After(clock) {
			if err := readings[next].Apply(streams); err != nil {
				a.Logger.Warn().Err(err).Int("row", next).Msg("recorded reading rejected")
			}
			next++
		}
		if err := svc.RunCycle(ctx); err != nil {
			a.Logger.Error().Err(err).Time("at", clock).Msg("replay cycle failed")
		}
		if next == len(readings) {
			break
		}
	}

	if err := svc.SaveAll(ctx); err != nil {
		return err
	}
	a.Logger.Info().
		Int("readings", len(readings)).
		Int("assessments", svc.Risks().Risk.Len()).
		Str("path", svcOpts.DataPath).
		Msg("replay complete")
	return nil
}
