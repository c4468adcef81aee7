package predictor

import (
	"context"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/series"
)

// DefaultBaselineCoreTemp is the assumed core temperature (°C) at the start
// of an estimation window.
const DefaultBaselineCoreTemp = 37.6

// Breakdown is one risk assessment with its component probabilities. All
// values are in [0,1].
type Breakdown struct {
	CoreTemp  float64
	HeatIndex float64
	LogReg    float64
	Risk      float64
}

// Input is the attribute snapshot handed to a predictor.
type Input interface {
	Fields() map[string]float64
}

// Predictor scores heat stroke risk.
type Predictor interface {
	// Predict scores one snapshot given the full heart rate and skin
	// temperature histories.
	Predict(ctx context.Context, in Input, heartRate, skinTemp []series.Point) (Breakdown, error)
	// EstimateCoreTemperature returns one core temperature estimate per
	// heart rate sample, starting from baseline.
	EstimateCoreTemperature(heartRate []series.Point, baseline float64) []series.Point
}
