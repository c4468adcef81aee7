package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/logging"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/table"
)

// ErrAlreadyReading is returned when StartReading is called twice.
var ErrAlreadyReading = errors.New("monitor: already reading")

// Source feeds samples into a Streams registry from some device or service.
type Source interface {
	Name() string
	Start(ctx context.Context, streams *Streams) error
	Stop()
	Done() <-chan struct{}
}

// Reading is one multi-channel sample as delivered by a device.
type Reading struct {
	Time   time.Time
	Values map[Channel]float64
}

// Apply appends every value of the reading to its stream.
func (r Reading) Apply(streams *Streams) error {
	var errs []error
	for _, ch := range Channels {
		v, ok := r.Values[ch]
		if !ok {
			continue
		}
		if err := streams.Record(ch, r.Time, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Without returns a copy of the reading minus the given channels.
func (r Reading) Without(channels []Channel) Reading {
	if len(channels) == 0 {
		return r
	}
	values := make(map[Channel]float64, len(r.Values))
	for ch, v := range r.Values {
		values[ch] = v
	}
	for _, ch := range channels {
		delete(values, ch)
	}
	return Reading{Time: r.Time, Values: values}
}

// Monitor owns the stream registry and the sources that feed it.
type Monitor struct {
	streams *Streams
	sources []Source
	logger  zerolog.Logger

	mu      sync.Mutex
	started []Source
	running bool
	done    chan struct{}
}

// New constructs a monitor reading from the given sources.
func New(logger zerolog.Logger, sources ...Source) *Monitor {
	return &Monitor{
		streams: NewStreams(),
		sources: sources,
		logger:  logging.Component(logger, "monitor"),
		done:    make(chan struct{}),
	}
}

// Streams exposes the live stream registry.
func (m *Monitor) Streams() *Streams {
	return m.streams
}

// CompiledTable returns all raw streams as one row-aligned table.
func (m *Monitor) CompiledTable() *table.Table {
	return m.streams.CompiledTable()
}

// StartReading starts every source. If one fails, the sources already started
// are stopped again and the error is returned.
func (m *Monitor) StartReading(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyReading
	}

	for _, src := range m.sources {
		if err := src.Start(ctx, m.streams); err != nil {
			for _, s := range m.started {
				s.Stop()
			}
			m.started = nil
			return fmt.Errorf("start source %s: %w", src.Name(), err)
		}
		m.started = append(m.started, src)
		m.logger.Info().Str("source", src.Name()).Msg("source started")
	}
	m.running = true

	started := m.started
	go func() {
		for _, s := range started {
			<-s.Done()
		}
		close(m.done)
	}()
	return nil
}

// StopReading signals every running source to stop. It does not wait.
func (m *Monitor) StopReading() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.started {
		s.Stop()
	}
}

// Done is closed after every started source has finished.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}
