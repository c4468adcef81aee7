package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/monitor"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/profile"
)

// ErrInsufficientData reports that a stream had no samples when a snapshot
// was taken.
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError names the empty channel. It matches
// ErrInsufficientData under errors.Is.
type InsufficientDataError struct {
	Channel monitor.Channel
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s stream is empty", e.Channel)
}

// Is reports whether target is ErrInsufficientData.
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// SunExposureField is the snapshot attribute for sun exposure, which no
// sensor measures.
const SunExposureField = "Exposure to sun"

// Snapshot is the point-in-time attribute set scored by the predictor.
type Snapshot struct {
	TakenAt     time.Time
	Profile     profile.Profile
	Readings    map[monitor.Channel]float64
	SunExposure float64
}

// Fields returns a fresh name to value map of every attribute.
func (s Snapshot) Fields() map[string]float64 {
	fields := s.Profile.Fields()
	for ch, v := range s.Readings {
		fields[ch.Field()] = v
	}
	fields[SunExposureField] = s.SunExposure
	return fields
}

// Reading returns the value captured for ch.
func (s Snapshot) Reading(ch monitor.Channel) float64 {
	return s.Readings[ch]
}

// BuildSnapshot copies the profile and the newest sample of every stream.
// Values are taken as-is; only stream emptiness is checked.
func BuildSnapshot(p profile.Profile, streams *monitor.Streams, at time.Time) (Snapshot, error) {
	readings := make(map[monitor.Channel]float64, len(monitor.Channels))
	for _, ch := range monitor.Channels {
		point, err := streams.Latest(ch)
		if err != nil {
			if errors.Is(err, monitor.ErrEmptyStream) {
				return Snapshot{}, &InsufficientDataError{Channel: ch}
			}
			return Snapshot{}, err
		}
		readings[ch] = point.Value
	}

	return Snapshot{
		TakenAt:  at,
		Profile:  p,
		Readings: readings,
	}, nil
}
