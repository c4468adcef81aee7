package fetcher

import (
	"context"
	"time"
)

// Conditions are ambient weather readings at one location.
type Conditions struct {
	TemperatureC     float64
	RelativeHumidity float64
	ObservedAt       time.Time
}

// ConditionsFetcher retrieves current ambient conditions.
type ConditionsFetcher interface {
	FetchConditions(ctx context.Context) (Conditions, error)
}
