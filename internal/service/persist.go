package service

import (
	"context"
	"fmt"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/monitor"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/series"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/table"
)

// Merge builds the output table: the raw stream table followed by the risk
// series and the core temperature estimate, each as a time/value column
// pair. Shorter columns are left empty past their own length.
func (s *Service) Merge() *table.Table {
	raw := s.acq.CompiledTable()
	hr := s.acq.Streams().Stream(monitor.HeartRate).Points()
	core := s.predictor.EstimateCoreTemperature(hr, s.opts.BaselineCoreTemp)
	risk, ct, hi, lr := s.riskPoints()

	columns := []struct {
		name   string
		points []series.Point
	}{
		{RiskName, risk},
		{HeatIndexName, hi},
		{CoreTempName, ct},
		{LogRegName, lr},
		{EstCoreName, core},
	}

	rows := raw.Rows()
	for _, c := range columns {
		rows = max(rows, len(c.points))
	}
	raw.Pad(rows)

	for _, c := range columns {
		raw.SetSeries(c.name, c.points)
	}
	return raw
}

// MergeAndSave merges every series and replaces the CSV file at path.
func (s *Service) MergeAndSave(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	merged := s.Merge()
	if err := merged.SaveCSV(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	s.logger.Debug().Str("path", path).Int("rows", merged.Rows()).Msg("merged data saved")
	return nil
}

// SaveAll writes the merged CSV and, when configured, the risk chart.
func (s *Service) SaveAll(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := s.MergeAndSave(ctx, s.opts.DataPath); err != nil {
		return err
	}
	if s.opts.ChartPath == "" {
		return nil
	}

	risk, ct, hi, lr := s.riskPoints()
	if len(risk) < 2 {
		return nil
	}
	err := WriteChart(s.opts.ChartPath,
		ChartLine{Name: RiskName, Points: risk},
		ChartLine{Name: CoreTempName, Points: ct},
		ChartLine{Name: HeatIndexName, Points: hi},
		ChartLine{Name: LogRegName, Points: lr},
	)
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
