package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/monitor"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/predictor"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/profile"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/series"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/service"
)

// SimulateAlert 以给定风险值运行一次预测周期，验证告警通道。
func (a *App) SimulateAlert(ctx context.Context, risk float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	prof, err := a.loadProfile()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	mon := monitor.New(a.Logger)
	sim := monitor.NewSimulator(monitor.SimulatorOptions{Strain: 1, Seed: 1}, a.Logger)
	if err := sim.Next(now).Apply(mon.Streams()); err != nil {
		return fmt.Errorf("seed readings: %w", err)
	}

	opts := service.OptionsFromConfig(a.Config)
	opts.Cooldown = 0
	svc := service.New(opts, profile.Static(prof), mon, fixedPredictor{risk: risk, Model: a.newPredictor()},
		nil, nil, notifier, a.Logger).WithClock(func() time.Time { return now })

	return svc.RunCycle(ctx)
}

// fixedPredictor reports the same probability for every component.
type fixedPredictor struct {
	*predictor.Model
	risk float64
}

func (f fixedPredictor) Predict(context.Context, predictor.Input, []series.Point, []series.Point) (predictor.Breakdown, error) {
	return predictor.Breakdown{CoreTemp: f.risk, HeatIndex: f.risk, LogReg: f.risk, Risk: f.risk}, nil
}

var _ predictor.Predictor = fixedPredictor{}
