package monitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/series"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/table"
)

// ErrEmptyStream is returned by Latest when a channel has no samples yet.
var ErrEmptyStream = errors.New("monitor: stream has no samples")

// Streams holds one series per channel.
type Streams struct {
	series [numChannels]*series.Series
}

// NewStreams allocates an empty series for every channel.
func NewStreams() *Streams {
	s := &Streams{}
	for _, ch := range Channels {
		s.series[ch] = series.New(ch.String())
	}
	return s
}

// Stream returns the series backing ch.
func (s *Streams) Stream(ch Channel) *series.Series {
	return s.series[ch]
}

// Latest returns the newest sample of ch.
func (s *Streams) Latest(ch Channel) (series.Point, error) {
	p, ok := s.series[ch].Last()
	if !ok {
		return series.Point{}, fmt.Errorf("%w: %s", ErrEmptyStream, ch)
	}
	return p, nil
}

// Record appends a sample to ch.
func (s *Streams) Record(ch Channel, at time.Time, value float64) error {
	return s.series[ch].Append(at, value)
}

// CompiledTable returns every stream as "time <key>"/"<key>" column pairs,
// row-aligned by sample index.
func (s *Streams) CompiledTable() *table.Table {
	t := table.New()
	for _, ch := range Channels {
		t.SetSeries(ch.String(), s.series[ch].Points())
	}
	return t
}
