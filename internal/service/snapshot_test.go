package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/monitor"
)

func TestBuildSnapshotUsesLatestValues(t *testing.T) {
	streams := monitor.NewStreams()
	fill(t, streams, time.Unix(0, 0))
	require.NoError(t, streams.Record(monitor.HeartRate, time.Unix(1, 0), 141))

	at := time.Unix(2, 0)
	snap, err := BuildSnapshot(testProfile().Profile(), streams, at)
	require.NoError(t, err)

	assert.Equal(t, at, snap.TakenAt)
	assert.Equal(t, 141.0, snap.Reading(monitor.HeartRate))
	assert.Equal(t, 60.0, snap.Reading(monitor.Humidity))
	assert.Zero(t, snap.SunExposure)

	fields := snap.Fields()
	assert.Equal(t, 141.0, fields["Heart / Pulse rate (b/min)"])
	assert.Equal(t, 22.0, fields["BMI"])
	assert.Contains(t, fields, SunExposureField)
	assert.Len(t, fields, len(monitor.Channels)+len(testProfile().Profile().Fields())+1)

	// callers may mutate the returned map freely
	fields["BMI"] = 99
	assert.Equal(t, 22.0, snap.Fields()["BMI"])
}

func TestBuildSnapshotEmptyStream(t *testing.T) {
	streams := monitor.NewStreams()
	fill(t, streams, time.Unix(0, 0), monitor.HeartRate)

	_, err := BuildSnapshot(testProfile().Profile(), streams, time.Unix(1, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)

	var insufficient *InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, monitor.HeartRate, insufficient.Channel)
}

func TestBuildSnapshotPassesValuesThrough(t *testing.T) {
	streams := monitor.NewStreams()
	fill(t, streams, time.Unix(0, 0), monitor.AmbientTemperature)
	require.NoError(t, streams.Record(monitor.AmbientTemperature, time.Unix(0, 0), -80))

	snap, err := BuildSnapshot(testProfile().Profile(), streams, time.Unix(1, 0))
	require.NoError(t, err)
	assert.Equal(t, -80.0, snap.Reading(monitor.AmbientTemperature))
}
