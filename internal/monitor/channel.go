package monitor

import (
	"fmt"
	"strings"
)

// Channel identifies one measured quantity.
type Channel int

const (
	HeartRate Channel = iota
	AmbientTemperature
	Humidity
	SkinTemperature
	Sweating
	Acceleration
	SkinColor

	numChannels
)

// Channels lists every channel in column order.
var Channels = [numChannels]Channel{
	HeartRate,
	AmbientTemperature,
	Humidity,
	SkinTemperature,
	Sweating,
	Acceleration,
	SkinColor,
}

var channelInfo = [numChannels]struct {
	key   string
	field string
}{
	HeartRate:          {key: "HR", field: "Heart / Pulse rate (b/min)"},
	AmbientTemperature: {key: "ETemp", field: "Environmental temperature (C)"},
	Humidity:           {key: "EHumid", field: "Relative Humidity"},
	SkinTemperature:    {key: "STemp", field: "Skin Temperature"},
	Sweating:           {key: "GSR", field: "Sweating"},
	Acceleration:       {key: "Acc", field: "Acceleration"},
	SkinColor:          {key: "Skin", field: "Skin color (flushed/normal=1, pale=0.5, cyatonic=0)"},
}

// String returns the short stream key, which is also the raw column name.
func (c Channel) String() string {
	if c < 0 || c >= numChannels {
		return fmt.Sprintf("Channel(%d)", int(c))
	}
	return channelInfo[c].key
}

// Field returns the attribute name the channel feeds in a snapshot.
func (c Channel) Field() string {
	if c < 0 || c >= numChannels {
		return ""
	}
	return channelInfo[c].field
}

// ParseChannel resolves a stream key or attribute field name, case-insensitively.
func ParseChannel(name string) (Channel, error) {
	name = strings.TrimSpace(name)
	for _, ch := range Channels {
		if strings.EqualFold(name, channelInfo[ch].key) || strings.EqualFold(name, channelInfo[ch].field) {
			return ch, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", name)
}
