package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/alerting"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/config"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/monitor"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/predictor"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/profile"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/series"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/storage"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/table"
)

type fakeAcquisition struct {
	streams *monitor.Streams
}

func (f *fakeAcquisition) Streams() *monitor.Streams   { return f.streams }
func (f *fakeAcquisition) CompiledTable() *table.Table { return f.streams.CompiledTable() }

// fill records one sample per channel, optionally leaving some channels empty.
func fill(t *testing.T, streams *monitor.Streams, at time.Time, skip ...monitor.Channel) {
	t.Helper()
	skipped := make(map[monitor.Channel]bool)
	for _, ch := range skip {
		skipped[ch] = true
	}
	values := map[monitor.Channel]float64{
		monitor.HeartRate:          120,
		monitor.AmbientTemperature: 33,
		monitor.Humidity:           60,
		monitor.SkinTemperature:    35.2,
		monitor.Sweating:           0.4,
		monitor.Acceleration:       1.1,
		monitor.SkinColor:          1,
	}
	for ch, v := range values {
		if skipped[ch] {
			continue
		}
		require.NoError(t, streams.Record(ch, at, v))
	}
}

type scriptedPredictor struct {
	mu     sync.Mutex
	risks  []float64
	calls  int
	err    error
	inputs []map[string]float64
}

func (p *scriptedPredictor) Predict(_ context.Context, in predictor.Input, _, _ []series.Point) (predictor.Breakdown, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputs = append(p.inputs, in.Fields())
	if p.err != nil {
		return predictor.Breakdown{}, p.err
	}
	r := p.risks[p.calls%len(p.risks)]
	p.calls++
	return predictor.Breakdown{CoreTemp: r / 2, HeatIndex: r / 3, LogReg: r / 4, Risk: r}, nil
}

func (p *scriptedPredictor) EstimateCoreTemperature(hr []series.Point, baseline float64) []series.Point {
	out := make([]series.Point, len(hr))
	for i, pt := range hr {
		out[i] = series.Point{Time: pt.Time, Value: baseline}
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return nil
}

// steppingClock returns the given instants in order.
func steppingClock(instants ...time.Time) func() time.Time {
	var i int
	return func() time.Time {
		t := instants[min(i, len(instants)-1)]
		i++
		return t
	}
}

func testProfile() profile.Static {
	return profile.Static{Name: "Avery", Age: 30, Sex: profile.Female, WeightKg: 60, HeightCm: 165, BMI: 22}
}

func newTestService(t *testing.T, pred predictor.Predictor, opts Options) (*Service, *monitor.Streams) {
	t.Helper()
	streams := monitor.NewStreams()
	if opts.DataPath == "" {
		opts.DataPath = filepath.Join(t.TempDir(), "all_data.csv")
	}
	svc := New(opts, testProfile(), &fakeAcquisition{streams: streams}, pred, nil, nil, nil, zerolog.Nop())
	return svc, streams
}

func readCSV(t *testing.T, path string) (map[string][]string, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)

	cols := make(map[string][]string)
	for c, name := range records[0] {
		for _, rec := range records[1:] {
			cols[name] = append(cols[name], rec[c])
		}
	}
	return cols, len(records) - 1
}

func TestThreeCyclesProduceRiskColumns(t *testing.T) {
	ctx := context.Background()
	pred := &scriptedPredictor{risks: []float64{0.12, 0.55, 0.91}}
	svc, streams := newTestService(t, pred, Options{})
	svc.WithClock(steppingClock(time.Unix(0, 0), time.Unix(5, 0), time.Unix(10, 0)))

	fill(t, streams, time.Unix(0, 0))
	for range 3 {
		require.NoError(t, svc.RunCycle(ctx))
	}

	require.NoError(t, svc.MergeAndSave(ctx, svc.opts.DataPath))
	cols, rows := readCSV(t, svc.opts.DataPath)

	assert.Equal(t, 3, rows)
	assert.Equal(t, []string{"0.12", "0.55", "0.91"}, cols["Risk"])
	assert.Equal(t, []string{"0", "5", "10"}, cols["time Risk"])
	assert.Equal(t, []string{"0.06", "0.275", "0.455"}, cols["CT Risk"])
	// one raw sample and one core estimate, padded with empty cells
	assert.Equal(t, []string{"120", "", ""}, cols["HR"])
	assert.Equal(t, []string{"37.6", "", ""}, cols["est CT"])
}

func TestMergeColumnOrder(t *testing.T) {
	pred := &scriptedPredictor{risks: []float64{0.3}}
	svc, streams := newTestService(t, pred, Options{})
	fill(t, streams, time.Unix(0, 0))

	merged := svc.Merge()
	columns := merged.Columns()
	require.Len(t, columns, 2*len(monitor.Channels)+10)

	tail := columns[len(columns)-10:]
	assert.Equal(t, []string{
		"time Risk", "Risk",
		"time HI Risk", "HI Risk",
		"time CT Risk", "CT Risk",
		"time LR Risk", "LR Risk",
		"time est CT", "est CT",
	}, tail)
	assert.Equal(t, []string{"time HR", "HR"}, columns[:2])
}

func TestMergePadsRawStreams(t *testing.T) {
	pred := &scriptedPredictor{risks: []float64{0.2}}
	svc, streams := newTestService(t, pred, Options{})
	for i := range 4 {
		require.NoError(t, streams.Record(monitor.HeartRate, time.Unix(int64(i), 0), 100+float64(i)))
	}
	require.NoError(t, streams.Record(monitor.Humidity, time.Unix(0, 0), 50))

	merged := svc.Merge()
	assert.Equal(t, 4, merged.Rows())

	humidity, ok := merged.Column("EHumid")
	require.True(t, ok)
	assert.True(t, humidity[0].Valid)
	for _, cell := range humidity[1:] {
		assert.False(t, cell.Valid)
	}

	risk, ok := merged.Column("Risk")
	require.True(t, ok)
	for _, cell := range risk {
		assert.False(t, cell.Valid)
	}
}

func TestSaveAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pred := &scriptedPredictor{risks: []float64{0.4, 0.6}}
	svc, streams := newTestService(t, pred, Options{})
	svc.WithClock(steppingClock(time.Unix(100, 0), time.Unix(105, 0)))
	fill(t, streams, time.Unix(99, 0))
	require.NoError(t, svc.RunCycle(ctx))
	require.NoError(t, svc.RunCycle(ctx))

	require.NoError(t, svc.SaveAll(ctx))
	first, err := os.ReadFile(svc.opts.DataPath)
	require.NoError(t, err)

	require.NoError(t, svc.SaveAll(ctx))
	second, err := os.ReadFile(svc.opts.DataPath)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, second))
}

func TestSaveAllRendersChart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	pred := &scriptedPredictor{risks: []float64{0.4, 0.6}}
	svc, streams := newTestService(t, pred, Options{
		DataPath:  filepath.Join(dir, "all_data.csv"),
		ChartPath: filepath.Join(dir, "charts", "risk.png"),
	})
	svc.WithClock(steppingClock(time.Unix(100, 0), time.Unix(105, 0)))
	fill(t, streams, time.Unix(99, 0))

	require.NoError(t, svc.RunCycle(ctx))
	require.NoError(t, svc.SaveAll(ctx))
	_, err := os.Stat(svc.opts.ChartPath)
	assert.True(t, os.IsNotExist(err), "one point is not plotted")

	require.NoError(t, svc.RunCycle(ctx))
	require.NoError(t, svc.SaveAll(ctx))
	info, err := os.Stat(svc.opts.ChartPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestSaveAllReportsWriteErrors(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	svc, _ := newTestService(t, &scriptedPredictor{risks: []float64{0.1}}, Options{
		DataPath: filepath.Join(blocker, "all_data.csv"),
	})
	assert.Error(t, svc.SaveAll(context.Background()))
}

func TestCycleSkipsOnInsufficientData(t *testing.T) {
	pred := &scriptedPredictor{risks: []float64{0.5}}
	svc, streams := newTestService(t, pred, Options{})
	fill(t, streams, time.Unix(0, 0), monitor.HeartRate)

	require.NoError(t, svc.RunCycle(context.Background()))
	assert.Zero(t, pred.calls)
	assert.Zero(t, svc.Risks().Risk.Len())
	assert.Zero(t, svc.Risks().LogReg.Len())
}

func TestCycleSkipsOnPredictorError(t *testing.T) {
	pred := &scriptedPredictor{risks: []float64{0.5}, err: errors.New("model unavailable")}
	svc, streams := newTestService(t, pred, Options{})
	fill(t, streams, time.Unix(0, 0))

	require.NoError(t, svc.RunCycle(context.Background()))
	assert.Zero(t, svc.Risks().Risk.Len())
}

func TestCyclePassesSnapshotFields(t *testing.T) {
	pred := &scriptedPredictor{risks: []float64{0.5}}
	svc, streams := newTestService(t, pred, Options{})
	fill(t, streams, time.Unix(0, 0))

	require.NoError(t, svc.RunCycle(context.Background()))
	require.Len(t, pred.inputs, 1)
	fields := pred.inputs[0]
	assert.Equal(t, 120.0, fields[monitor.HeartRate.Field()])
	assert.Equal(t, 30.0, fields["Age"])
	assert.Equal(t, 0.0, fields[SunExposureField])
}

func TestRiskSeriesStrictlyIncreasing(t *testing.T) {
	pred := &scriptedPredictor{risks: []float64{0.5}}
	svc, streams := newTestService(t, pred, Options{})
	svc.WithClock(steppingClock(time.Unix(10, 0), time.Unix(10, 0)))
	fill(t, streams, time.Unix(0, 0))

	require.NoError(t, svc.RunCycle(context.Background()))
	err := svc.RunCycle(context.Background())
	assert.ErrorIs(t, err, series.ErrOutOfOrder)

	risks := svc.Risks()
	for _, s := range []*series.Series{risks.Risk, risks.CoreTemp, risks.HeatIndex, risks.LogReg} {
		assert.Equal(t, 1, s.Len(), s.Name())
	}
}

func TestAlertsRespectThresholdAndCooldown(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, config.DatabaseConfig{
		Driver:      config.DriverSQLite,
		DSN:         filepath.Join(t.TempDir(), "history.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	streams := monitor.NewStreams()
	fill(t, streams, time.Unix(0, 0))
	notifier := &recordingNotifier{}
	pred := &scriptedPredictor{risks: []float64{0.9, 0.95, 0.3, 0.85}}

	svc := New(Options{
		DataPath:      filepath.Join(t.TempDir(), "all_data.csv"),
		AlertsEnabled: true,
		Threshold:     0.8,
		Cooldown:      time.Minute,
		Channels:      []string{"telegram"},
	}, testProfile(), &fakeAcquisition{streams: streams}, pred, store, store, notifier, zerolog.Nop())
	svc.WithClock(steppingClock(
		time.Unix(1000, 0),
		time.Unix(1030, 0), // within cooldown
		time.Unix(1100, 0), // below threshold
		time.Unix(1200, 0),
	))

	for range 4 {
		require.NoError(t, svc.RunCycle(ctx))
	}

	require.Len(t, notifier.notes, 2)
	assert.Equal(t, "0.9", notifier.notes[0].Risk.String())
	assert.Equal(t, "Avery", notifier.notes[0].User)
	assert.Equal(t, "120", notifier.notes[0].HeartRate.String())
	assert.Equal(t, "0.85", notifier.notes[1].Risk.String())

	alerts, err := store.ListRecentAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)

	count, err := store.CountAssessments(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[           ]", progressBar(0))
	assert.Equal(t, "[=====      ]", progressBar(0.5))
	assert.Equal(t, "[========== ]", progressBar(1))
	assert.Equal(t, progressBar(1), progressBar(3))
}

func TestSummarize(t *testing.T) {
	lines := summarize(predictor.Breakdown{Risk: 0.5, CoreTemp: 0.1, HeatIndex: 0.2, LogReg: 0.3})
	require.Len(t, lines, 4)
	assert.Equal(t, "Risk      [=====      ]  50.0%", lines[0])
}
