package predictor

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/monitor"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/series"
)

// ErrNoHeartRate is returned when Predict is called without heart rate history.
var ErrNoHeartRate = errors.New("predictor: heart rate history is empty")

// Kalman filter parameters relating heart rate to core temperature
// (Buller et al., 2013).
const (
	ctProcessVar = 0.022 * 0.022
	hrB0         = -7887.1
	hrB1         = 384.4286
	hrB2         = -4.5714
	hrObsVar     = 18.88 * 18.88
)

// Options tune the heuristic model.
type Options struct {
	BaselineCoreTemp float64
	// SkinWindow is how much recent skin temperature history is averaged.
	SkinWindow time.Duration
	// Weights of the CT, HI and LR components in the aggregate risk.
	Weights [3]float64
}

// Model combines three independent estimates: core temperature inferred from
// heart rate, the NOAA heat index and a fixed logistic regression over the
// snapshot attributes.
type Model struct {
	opts Options
	lr   []lrTerm
}

// lrTerm is one logistic regression coefficient. Terms are summed in slice
// order.
type lrTerm struct {
	field  string
	weight float64
}

// NewModel constructs the heuristic predictor.
func NewModel(opts Options) *Model {
	if opts.BaselineCoreTemp <= 0 {
		opts.BaselineCoreTemp = DefaultBaselineCoreTemp
	}
	if opts.SkinWindow <= 0 {
		opts.SkinWindow = 30 * time.Second
	}
	if opts.Weights == ([3]float64{}) {
		opts.Weights = [3]float64{1, 1, 1}
	}

	return &Model{
		opts: opts,
		lr: []lrTerm{
			{monitor.HeartRate.Field(), 0.03},
			{monitor.SkinTemperature.Field(), 0.25},
			{monitor.Sweating.Field(), -1.5},
			{monitor.Acceleration.Field(), 0.3},
			{monitor.SkinColor.Field(), -0.5},
			{monitor.AmbientTemperature.Field(), 0.08},
			{"Age", 0.02},
			{"BMI", 0.05},
			{"Cardiovascular disease history", 0.8},
			{"Sickle Cell Trait (SCT)", 0.9},
			{"Exposure to sun", 0.5},
		},
	}
}

const lrIntercept = -16.0

// Predict implements Predictor.
func (m *Model) Predict(ctx context.Context, in Input, heartRate, skinTemp []series.Point) (Breakdown, error) {
	if err := ctx.Err(); err != nil {
		return Breakdown{}, err
	}
	if len(heartRate) == 0 {
		return Breakdown{}, ErrNoHeartRate
	}

	fields := in.Fields()

	core := m.EstimateCoreTemperature(heartRate, m.opts.BaselineCoreTemp)
	ctProb := logistic((core[len(core)-1].Value - 39.0) / 0.35)

	hi := HeatIndexC(fields[monitor.AmbientTemperature.Field()], fields[monitor.Humidity.Field()])
	hiProb := logistic((hi - 40.0) / 3.0)

	if smoothed, ok := recentMean(skinTemp, m.opts.SkinWindow); ok {
		fields[monitor.SkinTemperature.Field()] = smoothed
	}
	z := lrIntercept
	for _, term := range m.lr {
		z += term.weight * fields[term.field]
	}
	lrProb := logistic(z)

	w := m.opts.Weights
	risk := (w[0]*ctProb + w[1]*hiProb + w[2]*lrProb) / (w[0] + w[1] + w[2])

	return Breakdown{CoreTemp: ctProb, HeatIndex: hiProb, LogReg: lrProb, Risk: risk}, nil
}

// EstimateCoreTemperature implements Predictor.
func (m *Model) EstimateCoreTemperature(heartRate []series.Point, baseline float64) []series.Point {
	out := make([]series.Point, len(heartRate))
	x, v := baseline, 0.0
	for i, p := range heartRate {
		xp := x
		vp := v + ctProcessVar
		c := 2*hrB2*xp + hrB1
		k := vp * c / (c*c*vp + hrObsVar)
		x = xp + k*(p.Value-(hrB2*xp*xp+hrB1*xp+hrB0))
		v = (1 - k*c) * vp
		out[i] = series.Point{Time: p.Time, Value: x}
	}
	return out
}

// HeatIndexC returns the NOAA heat index in °C for an air temperature in °C
// and a relative humidity in percent.
func HeatIndexC(tempC, rh float64) float64 {
	t := tempC*9/5 + 32

	simple := 0.5 * (t + 61 + (t-68)*1.2 + rh*0.094)
	if (simple+t)/2 < 80 {
		return (simple - 32) * 5 / 9
	}

	hi := -42.379 + 2.04901523*t + 10.14333127*rh -
		0.22475541*t*rh - 0.00683783*t*t - 0.05481717*rh*rh +
		0.00122874*t*t*rh + 0.00085282*t*rh*rh - 0.00000199*t*t*rh*rh

	switch {
	case rh < 13 && t >= 80 && t <= 112:
		hi -= ((13 - rh) / 4) * math.Sqrt((17-math.Abs(t-95))/17)
	case rh > 85 && t >= 80 && t <= 87:
		hi += ((rh - 85) / 10) * ((87 - t) / 5)
	}
	return (hi - 32) * 5 / 9
}

func recentMean(points []series.Point, window time.Duration) (float64, bool) {
	if len(points) == 0 {
		return 0, false
	}
	cutoff := points[len(points)-1].Time.Add(-window)
	sum, n := 0.0, 0
	for i := len(points) - 1; i >= 0 && !points[i].Time.Before(cutoff); i-- {
		sum += points[i].Value
		n++
	}
	return sum / float64(n), true
}

func logistic(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

var _ Predictor = (*Model)(nil)
