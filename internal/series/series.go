package series

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOutOfOrder is returned when a point does not advance the series clock.
var ErrOutOfOrder = errors.New("series: timestamp must be after the last point")

// Point is a single timestamped observation.
type Point struct {
	Time  time.Time
	Value float64
}

// Series is an append-only, strictly time-ordered sequence of points that is
// safe for one writer and any number of concurrent readers.
type Series struct {
	name   string
	mu     sync.RWMutex
	points []Point
}

// New returns an empty series.
func New(name string) *Series {
	return &Series{name: name}
}

// Name reports the series name.
func (s *Series) Name() string {
	return s.name
}

// Append adds a point. The timestamp and value are inserted together under
// the write lock so readers never observe one without the other.
func (s *Series) Append(at time.Time, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.points); n > 0 && !at.After(s.points[n-1].Time) {
		return fmt.Errorf("%w: %s at %s (last %s)", ErrOutOfOrder, s.name,
			at.Format(time.RFC3339Nano), s.points[n-1].Time.Format(time.RFC3339Nano))
	}
	s.points = append(s.points, Point{Time: at, Value: value})
	return nil
}

// Last returns the most recent point, if any.
func (s *Series) Last() (Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.points) == 0 {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}

// Len returns the number of points.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Points returns a copy of all points in insertion order.
func (s *Series) Points() []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Values returns a copy of the values in insertion order.
func (s *Series) Values() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.Value
	}
	return out
}
