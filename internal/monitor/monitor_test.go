package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/fetcher"
)

func TestParseChannel(t *testing.T) {
	ch, err := ParseChannel("hr")
	require.NoError(t, err)
	assert.Equal(t, HeartRate, ch)

	ch, err = ParseChannel("Skin Temperature")
	require.NoError(t, err)
	assert.Equal(t, SkinTemperature, ch)

	_, err = ParseChannel("pressure")
	assert.Error(t, err)

	assert.Equal(t, "Sweating", Sweating.Field())
	assert.Equal(t, "GSR", Sweating.String())
}

func TestLatestOnEmptyStream(t *testing.T) {
	streams := NewStreams()
	_, err := streams.Latest(HeartRate)
	assert.ErrorIs(t, err, ErrEmptyStream)

	require.NoError(t, streams.Record(HeartRate, time.Unix(1, 0), 80))
	p, err := streams.Latest(HeartRate)
	require.NoError(t, err)
	assert.Equal(t, 80.0, p.Value)
}

func TestCompiledTableAlignsStreams(t *testing.T) {
	streams := NewStreams()
	for i := 0; i < 3; i++ {
		require.NoError(t, streams.Record(HeartRate, time.Unix(int64(i), 0), 70+float64(i)))
	}
	require.NoError(t, streams.Record(SkinTemperature, time.Unix(0, 0), 34))

	tbl := streams.CompiledTable()
	assert.Equal(t, 3, tbl.Rows())
	assert.Len(t, tbl.Columns(), 2*len(Channels))

	skin, ok := tbl.Column("STemp")
	require.True(t, ok)
	assert.True(t, skin[0].Valid)
	assert.False(t, skin[1].Valid)
}

func TestReadingApplyReportsRejectedValues(t *testing.T) {
	streams := NewStreams()
	require.NoError(t, streams.Record(HeartRate, time.Unix(10, 0), 80))

	err := Reading{Time: time.Unix(5, 0), Values: map[Channel]float64{HeartRate: 81, SkinTemperature: 34}}.Apply(streams)
	assert.Error(t, err)
	assert.Equal(t, 1, streams.Stream(HeartRate).Len())
	assert.Equal(t, 1, streams.Stream(SkinTemperature).Len())
}

func TestDecodeReading(t *testing.T) {
	received := time.Unix(100, 0)

	r, err := DecodeReading([]byte(`{"HR": 91.5, "Skin Temperature": 35.2, "battery": 80}`), received)
	require.NoError(t, err)
	assert.True(t, r.Time.Equal(received))
	assert.Equal(t, map[Channel]float64{HeartRate: 91.5, SkinTemperature: 35.2}, r.Values)

	r, err = DecodeReading([]byte(`{"time": 1719835200.5, "etemp": 33}`), received)
	require.NoError(t, err)
	assert.True(t, r.Time.Equal(time.Unix(1719835200, 500_000_000)))

	_, err = DecodeReading([]byte(`{"battery": 80}`), received)
	assert.Error(t, err)
	_, err = DecodeReading([]byte(`not json`), received)
	assert.Error(t, err)
}

func TestMQTTHandleMessage(t *testing.T) {
	src := NewMQTTSource(MQTTOptions{Broker: "tcp://localhost:1883", Topic: "wearable/readings"}, zerolog.Nop())
	src.streams = NewStreams()
	src.now = func() time.Time { return time.Unix(50, 0) }

	src.handleMessage("wearable/readings", []byte(`{"HR": 120}`))
	src.handleMessage("wearable/readings", []byte(`garbage`))

	assert.Equal(t, 1, src.streams.Stream(HeartRate).Len())
	assert.Equal(t, uint64(1), src.Dropped())
}

func TestMQTTStartRequiresBrokerAndTopic(t *testing.T) {
	src := NewMQTTSource(MQTTOptions{}, zerolog.Nop())
	assert.Error(t, src.Start(context.Background(), NewStreams()))
}

func TestLoadRecording(t *testing.T) {
	csv := "time,HR,Skin Temperature,ETemp\n" +
		"0,80,34.1,\n" +
		"1.5,82,,31\n"

	readings, err := LoadRecording(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, map[Channel]float64{HeartRate: 80, SkinTemperature: 34.1}, readings[0].Values)
	assert.True(t, readings[1].Time.Equal(time.Unix(1, 500_000_000)))
	assert.Equal(t, 31.0, readings[1].Values[AmbientTemperature])

	_, err = LoadRecording(strings.NewReader("HR\n80\n"))
	assert.Error(t, err)
	_, err = LoadRecording(strings.NewReader("time,altitude\n0,1\n"))
	assert.Error(t, err)
}

func TestReplaySourceFeedsStreams(t *testing.T) {
	readings := []Reading{
		{Time: time.Unix(0, 0), Values: map[Channel]float64{HeartRate: 80}},
		{Time: time.Unix(0, int64(10*time.Millisecond)), Values: map[Channel]float64{HeartRate: 81}},
		{Time: time.Unix(0, int64(20*time.Millisecond)), Values: map[Channel]float64{HeartRate: 82}},
	}
	m := New(zerolog.Nop(), NewReplaySource(readings, ReplayOptions{Speed: 2}, zerolog.Nop()))
	require.NoError(t, m.StartReading(context.Background()))

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not finish")
	}
	assert.Equal(t, []float64{80, 81, 82}, m.Streams().Stream(HeartRate).Values())
}

func TestSimulatorThroughMonitor(t *testing.T) {
	sim := NewSimulator(SimulatorOptions{Interval: 5 * time.Millisecond, Seed: 7}, zerolog.Nop())
	m := New(zerolog.Nop(), sim)
	require.NoError(t, m.StartReading(context.Background()))
	assert.ErrorIs(t, m.StartReading(context.Background()), ErrAlreadyReading)

	require.Eventually(t, func() bool {
		return m.Streams().Stream(SkinColor).Len() >= 3
	}, time.Second, 5*time.Millisecond)

	m.StopReading()
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}

	for _, ch := range Channels {
		assert.Greater(t, m.Streams().Stream(ch).Len(), 0, ch.String())
	}
}

func TestSimulatorStrainRaisesHeartRate(t *testing.T) {
	sim := NewSimulator(SimulatorOptions{Seed: 1, Strain: 1}, zerolog.Nop())

	var hr float64
	for i := 0; i < 200; i++ {
		hr = sim.Next(time.Unix(int64(i), 0)).Values[HeartRate]
	}
	assert.Greater(t, hr, 150.0)
}

type failingSource struct{ stopped bool }

func (f *failingSource) Name() string { return "failing" }
func (f *failingSource) Start(context.Context, *Streams) error {
	return errors.New("device unreachable")
}
func (f *failingSource) Stop()                 { f.stopped = true }
func (f *failingSource) Done() <-chan struct{} { return nil }

func TestStartReadingRollsBackOnFailure(t *testing.T) {
	sim := NewSimulator(SimulatorOptions{Interval: time.Hour}, zerolog.Nop())
	m := New(zerolog.Nop(), sim, &failingSource{})

	err := m.StartReading(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")

	select {
	case <-sim.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("already started source was not stopped")
	}
}

type stubFetcher struct {
	cond fetcher.Conditions
	err  error
}

func (s stubFetcher) FetchConditions(context.Context) (fetcher.Conditions, error) {
	return s.cond, s.err
}

func TestAmbientSourcePopulatesEnvironmentOnStart(t *testing.T) {
	src := NewAmbientSource(stubFetcher{cond: fetcher.Conditions{TemperatureC: 39, RelativeHumidity: 60}}, time.Hour, zerolog.Nop())
	streams := NewStreams()
	require.NoError(t, src.Start(context.Background(), streams))
	defer func() {
		src.Stop()
		<-src.Done()
	}()

	temp, err := streams.Latest(AmbientTemperature)
	require.NoError(t, err)
	assert.Equal(t, 39.0, temp.Value)
	humid, err := streams.Latest(Humidity)
	require.NoError(t, err)
	assert.Equal(t, 60.0, humid.Value)
}

func TestAmbientSourceToleratesInitialFailure(t *testing.T) {
	src := NewAmbientSource(stubFetcher{err: errors.New("offline")}, time.Hour, zerolog.Nop())
	streams := NewStreams()
	require.NoError(t, src.Start(context.Background(), streams))
	src.Stop()
	<-src.Done()

	assert.Equal(t, 0, streams.Stream(AmbientTemperature).Len())
}

type slowFetcher struct {
	delay time.Duration
	cond  fetcher.Conditions
}

func (s slowFetcher) FetchConditions(ctx context.Context) (fetcher.Conditions, error) {
	select {
	case <-time.After(s.delay):
		return s.cond, nil
	case <-ctx.Done():
		return fetcher.Conditions{}, ctx.Err()
	}
}

func TestAmbientSourceOwnsEnvironmentChannels(t *testing.T) {
	sim := NewSimulator(SimulatorOptions{Interval: 20 * time.Millisecond, Seed: 3, Exclude: AmbientChannels}, zerolog.Nop())
	weather := NewAmbientSource(slowFetcher{
		delay: 150 * time.Millisecond,
		cond:  fetcher.Conditions{TemperatureC: 41.5, RelativeHumidity: 35},
	}, time.Hour, zerolog.Nop())

	m := New(zerolog.Nop(), sim, weather)
	started := time.Now()
	require.NoError(t, m.StartReading(context.Background()))
	defer func() {
		m.StopReading()
		<-m.Done()
	}()

	temp := m.Streams().Stream(AmbientTemperature).Points()
	require.Len(t, temp, 1)
	assert.Equal(t, 41.5, temp[0].Value)
	assert.False(t, temp[0].Time.Before(started.Add(150*time.Millisecond)), "stamped after the fetch returned")

	require.Eventually(t, func() bool {
		return m.Streams().Stream(HeartRate).Len() >= 5
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, m.Streams().Stream(AmbientTemperature).Len())
	assert.Equal(t, 1, m.Streams().Stream(Humidity).Len())
}

func TestReadingWithout(t *testing.T) {
	r := Reading{Time: time.Unix(1, 0), Values: map[Channel]float64{HeartRate: 90, Humidity: 40}}
	trimmed := r.Without(AmbientChannels)

	assert.Equal(t, map[Channel]float64{HeartRate: 90}, trimmed.Values)
	assert.Len(t, r.Values, 2, "original left untouched")
	assert.Equal(t, r.Time, trimmed.Time)
}

func TestMQTTExcludedChannels(t *testing.T) {
	src := NewMQTTSource(MQTTOptions{Broker: "tcp://localhost:1883", Topic: "wearable/readings", Exclude: AmbientChannels}, zerolog.Nop())
	src.streams = NewStreams()
	src.now = func() time.Time { return time.Unix(50, 0) }

	src.handleMessage("wearable/readings", []byte(`{"HR": 120, "ETemp": 33}`))

	assert.Equal(t, 1, src.streams.Stream(HeartRate).Len())
	assert.Equal(t, 0, src.streams.Stream(AmbientTemperature).Len())
}
