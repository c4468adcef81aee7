package monitor

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/logging"
)

// LoadRecordingFile reads a recorded session from a CSV file.
func LoadRecordingFile(path string) ([]Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()
	return LoadRecording(f)
}

// LoadRecording parses a CSV recording. The header must contain a "time"
// column in unix seconds; every other column is a channel key or field name.
// Empty cells mean the channel was not sampled on that row.
func LoadRecording(r io.Reader) ([]Reading, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read recording header: %w", err)
	}

	timeCol := -1
	cols := make(map[int]Channel, len(header))
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "time") {
			timeCol = i
			continue
		}
		ch, err := ParseChannel(name)
		if err != nil {
			return nil, fmt.Errorf("recording header: %w", err)
		}
		cols[i] = ch
	}
	if timeCol < 0 {
		return nil, errors.New("recording header has no time column")
	}

	var readings []Reading
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("recording line %d: %w", line, err)
		}
		if timeCol >= len(record) {
			return nil, fmt.Errorf("recording line %d: missing time", line)
		}

		sec, err := strconv.ParseFloat(strings.TrimSpace(record[timeCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("recording line %d: time: %w", line, err)
		}
		whole, frac := math.Modf(sec)
		reading := Reading{
			Time:   time.Unix(int64(whole), int64(frac*1e9)),
			Values: make(map[Channel]float64, len(cols)),
		}
		for i, ch := range cols {
			if i >= len(record) || strings.TrimSpace(record[i]) == "" {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("recording line %d: %s: %w", line, ch, err)
			}
			reading.Values[ch] = v
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

// ReplayOptions configure live replay of a recording.
type ReplayOptions struct {
	// Speed multiplies the recorded pace; 2 replays twice as fast.
	Speed float64
	// Exclude lists channels another source owns.
	Exclude []Channel
}

// ReplaySource feeds a recording into the streams at its recorded pace,
// rebased onto the wall clock at Start.
type ReplaySource struct {
	readings []Reading
	opts     ReplayOptions
	logger   zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewReplaySource constructs a replay source.
func NewReplaySource(readings []Reading, opts ReplayOptions, logger zerolog.Logger) *ReplaySource {
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	return &ReplaySource{
		readings: readings,
		opts:     opts,
		logger:   logging.Component(logger, "replay_source"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Name implements Source.
func (r *ReplaySource) Name() string { return "replay" }

// Start implements Source.
func (r *ReplaySource) Start(ctx context.Context, streams *Streams) error {
	if len(r.readings) == 0 {
		return errors.New("recording is empty")
	}
	go r.run(ctx, streams)
	return nil
}

// Stop implements Source.
func (r *ReplaySource) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Done is closed when the recording is exhausted or the source is stopped.
func (r *ReplaySource) Done() <-chan struct{} { return r.done }

func (r *ReplaySource) run(ctx context.Context, streams *Streams) {
	defer close(r.done)

	origin := r.readings[0].Time
	start := time.Now()
	for i, reading := range r.readings {
		offset := time.Duration(float64(reading.Time.Sub(origin)) / r.opts.Speed)
		at := start.Add(offset)

		if wait := time.Until(at); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-r.stopCh:
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		rebased := Reading{Time: at, Values: reading.Values}.Without(r.opts.Exclude)
		if err := rebased.Apply(streams); err != nil {
			r.logger.Warn().Err(err).Int("row", i).Msg("replayed reading rejected")
		}
	}
	r.logger.Info().Int("rows", len(r.readings)).Msg("recording exhausted")
}

var _ Source = (*ReplaySource)(nil)
