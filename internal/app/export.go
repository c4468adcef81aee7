package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"time"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/series"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/service"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/storage"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/table"
)

// Export renders assessment history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer store.Close()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.PredictionInterval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	assessments, err := store.ListAssessmentsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(assessments) == 0 {
		a.Logger.Info().Msg("no assessments found for export window")
		return nil
	}

	downsampled := downsampleAssessments(assessments, opts.MaxPoints)
	a.Logger.Info().Int("total", len(assessments)).Int("exported", len(downsampled)).Msg("exporting assessments")

	if opts.CSVPath != "" {
		if err := writeAssessmentsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeAssessmentsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleAssessments(assessments []storage.Assessment, max int) []storage.Assessment {
	if max <= 0 || len(assessments) <= max {
		return assessments
	}
	if max == 1 {
		return assessments[len(assessments)-1:]
	}

	result := make([]storage.Assessment, 0, max)
	step := float64(len(assessments)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(assessments) {
			idx = len(assessments) - 1
		}
		result = append(result, assessments[idx])
	}
	return result
}

func writeAssessmentsCSV(path string, assessments []storage.Assessment) error {
	if err := table.EnsureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"taken_at", "user", "risk", "ct_risk", "hi_risk", "lr_risk", "heart_rate", "skin_temp", "ambient_temp", "humidity"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, a := range assessments {
		record := []string{
			a.TakenAt.Format(time.RFC3339),
			a.User,
			a.Risk.StringFixed(4),
			a.CoreTempRisk.StringFixed(4),
			a.HeatIndexRisk.StringFixed(4),
			a.LogRegRisk.StringFixed(4),
			a.HeartRate.StringFixed(1),
			a.SkinTemp.StringFixed(2),
			a.AmbientTemp.StringFixed(2),
			a.Humidity.StringFixed(1),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeAssessmentsPNG(path string, assessments []storage.Assessment) error {
	risk := make([]series.Point, len(assessments))
	ct := make([]series.Point, len(assessments))
	hi := make([]series.Point, len(assessments))
	lr := make([]series.Point, len(assessments))

	for i, a := range assessments {
		risk[i] = series.Point{Time: a.TakenAt, Value: a.Risk.InexactFloat64()}
		ct[i] = series.Point{Time: a.TakenAt, Value: a.CoreTempRisk.InexactFloat64()}
		hi[i] = series.Point{Time: a.TakenAt, Value: a.HeatIndexRisk.InexactFloat64()}
		lr[i] = series.Point{Time: a.TakenAt, Value: a.LogRegRisk.InexactFloat64()}
	}

	return service.WriteChart(path,
		service.ChartLine{Name: service.RiskName, Points: risk},
		service.ChartLine{Name: service.CoreTempName, Points: ct},
		service.ChartLine{Name: service.HeatIndexName, Points: hi},
		service.ChartLine{Name: service.LogRegName, Points: lr},
	)
}
