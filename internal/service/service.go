package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/alerting"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/config"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/logging"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/monitor"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/predictor"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/profile"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/series"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/storage"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/table"
)

// Risk series names, also used as output column names.
const (
	RiskName      = "Risk"
	CoreTempName  = "CT Risk"
	HeatIndexName = "HI Risk"
	LogRegName    = "LR Risk"
	EstCoreName   = "est CT"
)

// Acquisition is the read side of the sensor layer.
type Acquisition interface {
	Streams() *monitor.Streams
	CompiledTable() *table.Table
}

// RiskSeries holds one series per risk component. All four grow together,
// one point per successful prediction cycle.
type RiskSeries struct {
	Risk      *series.Series
	CoreTemp  *series.Series
	HeatIndex *series.Series
	LogReg    *series.Series
}

// NewRiskSeries allocates empty risk series.
func NewRiskSeries() RiskSeries {
	return RiskSeries{
		Risk:      series.New(RiskName),
		CoreTemp:  series.New(CoreTempName),
		HeatIndex: series.New(HeatIndexName),
		LogReg:    series.New(LogRegName),
	}
}

// Options configure a Service.
type Options struct {
	DataPath         string
	ChartPath        string
	BaselineCoreTemp float64

	AlertsEnabled bool
	Threshold     float64
	Cooldown      time.Duration
	Channels      []string
}

// OptionsFromConfig maps runtime configuration onto service options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DataPath:         cfg.Persistence.DataPath(),
		ChartPath:        cfg.Persistence.ChartPath(),
		BaselineCoreTemp: cfg.Predictor.BaselineCoreTemp,
		AlertsEnabled:    cfg.Alerting.Enabled,
		Threshold:        cfg.Alerting.Threshold,
		Cooldown:         cfg.Alerting.Cooldown,
		Channels:         cfg.Alerting.Channels,
	}
}

// Service runs prediction cycles and persists merged results.
type Service struct {
	opts       Options
	profile    profile.Provider
	acq        Acquisition
	predictor  predictor.Predictor
	store      storage.AssessmentStore
	alertStore storage.AlertStore
	notifier   alerting.Notifier
	logger     zerolog.Logger
	now        func() time.Time

	// riskMu keeps the four risk series length-consistent for readers.
	riskMu sync.Mutex
	risks  RiskSeries

	alertMu   sync.Mutex
	lastAlert time.Time

	saveMu sync.Mutex
}

// New constructs the service. store, alertStore and notifier may be nil.
func New(opts Options, prof profile.Provider, acq Acquisition, pred predictor.Predictor, store storage.AssessmentStore, alertStore storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	if opts.BaselineCoreTemp <= 0 {
		opts.BaselineCoreTemp = predictor.DefaultBaselineCoreTemp
	}
	return &Service{
		opts:       opts,
		profile:    prof,
		acq:        acq,
		predictor:  pred,
		store:      store,
		alertStore: alertStore,
		notifier:   notifier,
		logger:     logging.Component(logger, "service"),
		now:        time.Now,
		risks:      NewRiskSeries(),
	}
}

// WithClock replaces the clock used to timestamp cycles.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Risks exposes the risk series.
func (s *Service) Risks() RiskSeries {
	return s.risks
}

// PredictTick adapts RunCycle to a scheduler tick.
func (s *Service) PredictTick(ctx context.Context, _ time.Time) error {
	return s.RunCycle(ctx)
}

// PersistTick adapts SaveAll to a scheduler tick.
func (s *Service) PersistTick(ctx context.Context, _ time.Time) error {
	return s.SaveAll(ctx)
}

// RunCycle takes a snapshot, scores it and appends the result to the risk
// series. Missing stream data skips the cycle without error.
func (s *Service) RunCycle(ctx context.Context) error {
	at := s.now()
	streams := s.acq.Streams()

	snap, err := BuildSnapshot(s.profile.Profile(), streams, at)
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			s.logger.Warn().Err(err).Msg("skip prediction cycle")
			return nil
		}
		return fmt.Errorf("build snapshot: %w", err)
	}

	hr := streams.Stream(monitor.HeartRate).Points()
	skin := streams.Stream(monitor.SkinTemperature).Points()

	breakdown, err := s.predictor.Predict(ctx, snap, hr, skin)
	if err != nil {
		s.logger.Error().Err(err).Time("taken_at", at).Msg("prediction failed")
		return nil
	}

	if err := s.appendRisks(at, breakdown); err != nil {
		return fmt.Errorf("record risk: %w", err)
	}

	ev := s.logger.Info().Time("taken_at", at).Float64("risk", breakdown.Risk)
	for i, line := range summarize(breakdown) {
		ev = ev.Str(fmt.Sprintf("line%d", i), line)
	}
	ev.Msg("risk assessed")

	s.persistAssessment(ctx, snap, breakdown)
	s.maybeAlert(ctx, snap, breakdown)
	return nil
}

func (s *Service) appendRisks(at time.Time, b predictor.Breakdown) error {
	s.riskMu.Lock()
	defer s.riskMu.Unlock()

	// Risk goes first: if it is rejected nothing else is written.
	if err := s.risks.Risk.Append(at, b.Risk); err != nil {
		return err
	}
	return errors.Join(
		s.risks.CoreTemp.Append(at, b.CoreTemp),
		s.risks.HeatIndex.Append(at, b.HeatIndex),
		s.risks.LogReg.Append(at, b.LogReg),
	)
}

// riskPoints copies the four risk series under one lock.
func (s *Service) riskPoints() (risk, ct, hi, lr []series.Point) {
	s.riskMu.Lock()
	defer s.riskMu.Unlock()
	return s.risks.Risk.Points(), s.risks.CoreTemp.Points(), s.risks.HeatIndex.Points(), s.risks.LogReg.Points()
}

func (s *Service) persistAssessment(ctx context.Context, snap Snapshot, b predictor.Breakdown) {
	if s.store == nil {
		return
	}
	a := storage.Assessment{
		TakenAt:       snap.TakenAt.UTC(),
		User:          snap.Profile.Name,
		Risk:          decimal.NewFromFloat(b.Risk),
		CoreTempRisk:  decimal.NewFromFloat(b.CoreTemp),
		HeatIndexRisk: decimal.NewFromFloat(b.HeatIndex),
		LogRegRisk:    decimal.NewFromFloat(b.LogReg),
		HeartRate:     decimal.NewFromFloat(snap.Reading(monitor.HeartRate)),
		SkinTemp:      decimal.NewFromFloat(snap.Reading(monitor.SkinTemperature)),
		AmbientTemp:   decimal.NewFromFloat(snap.Reading(monitor.AmbientTemperature)),
		Humidity:      decimal.NewFromFloat(snap.Reading(monitor.Humidity)),
	}
	if err := s.store.InsertAssessment(ctx, a); err != nil {
		s.logger.Error().Err(err).Time("taken_at", snap.TakenAt).Msg("failed to persist assessment")
	}
}

func (s *Service) maybeAlert(ctx context.Context, snap Snapshot, b predictor.Breakdown) {
	if !s.opts.AlertsEnabled || s.notifier == nil || b.Risk < s.opts.Threshold {
		return
	}

	s.alertMu.Lock()
	if !s.lastAlert.IsZero() && snap.TakenAt.Sub(s.lastAlert) < s.opts.Cooldown {
		s.alertMu.Unlock()
		s.logger.Debug().Time("taken_at", snap.TakenAt).Msg("alert suppressed by cooldown")
		return
	}
	s.lastAlert = snap.TakenAt
	s.alertMu.Unlock()

	threshold := decimal.NewFromFloat(s.opts.Threshold)
	risk := decimal.NewFromFloat(b.Risk)

	if s.alertStore != nil {
		record := storage.AlertRecord{
			TakenAt:   snap.TakenAt.UTC(),
			User:      snap.Profile.Name,
			Risk:      risk,
			Threshold: threshold,
			Channels:  s.opts.Channels,
		}
		if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Time("taken_at", snap.TakenAt).Msg("failed to persist alert record")
		}
	}

	note := alerting.Notification{
		TakenAt:       snap.TakenAt,
		User:          snap.Profile.Name,
		Risk:          risk,
		CoreTempRisk:  decimal.NewFromFloat(b.CoreTemp),
		HeatIndexRisk: decimal.NewFromFloat(b.HeatIndex),
		LogRegRisk:    decimal.NewFromFloat(b.LogReg),
		Threshold:     threshold,
		HeartRate:     decimal.NewFromFloat(snap.Reading(monitor.HeartRate)),
		SkinTemp:      decimal.NewFromFloat(snap.Reading(monitor.SkinTemperature)),
		AmbientTemp:   decimal.NewFromFloat(snap.Reading(monitor.AmbientTemperature)),
		Channels:      s.opts.Channels,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Time("taken_at", snap.TakenAt).Msg("failed to dispatch alert")
	}
}
