package monitor

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/scheduler"
)

// SimulatorOptions configure synthetic data generation.
type SimulatorOptions struct {
	Interval time.Duration
	// Strain in [0,1] biases the random walk towards heat stress.
	Strain float64
	Seed   uint64
	// Exclude lists channels another source owns.
	Exclude []Channel
}

type walk struct {
	value, step, min, max, stressTarget float64
}

// Simulator generates plausible wearable readings without a device.
type Simulator struct {
	opts  SimulatorOptions
	sched *scheduler.Scheduler
	rng   *rand.Rand
	walks [numChannels]walk
}

// NewSimulator constructs a synthetic source.
func NewSimulator(opts SimulatorOptions, logger zerolog.Logger) *Simulator {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &Simulator{
		opts:  opts,
		sched: scheduler.New("simulator", scheduler.Options{Interval: opts.Interval}, logger),
		rng:   rand.New(rand.NewPCG(seed, seed>>1|1)),
		walks: [numChannels]walk{
			HeartRate:          {value: 75, step: 3, min: 45, max: 200, stressTarget: 175},
			AmbientTemperature: {value: 30, step: 0.2, min: -10, max: 55, stressTarget: 42},
			Humidity:           {value: 50, step: 1, min: 5, max: 100, stressTarget: 75},
			SkinTemperature:    {value: 34, step: 0.1, min: 28, max: 42, stressTarget: 38.5},
			Sweating:           {value: 0.3, step: 0.05, min: 0, max: 1, stressTarget: 0.9},
			Acceleration:       {value: 1, step: 0.2, min: 0, max: 4, stressTarget: 2.5},
			SkinColor:          {value: 1, step: 0, min: 0, max: 1, stressTarget: 1},
		},
	}
}

// Name implements Source.
func (s *Simulator) Name() string { return "simulator" }

// Start implements Source.
func (s *Simulator) Start(ctx context.Context, streams *Streams) error {
	return s.sched.Start(ctx, func(_ context.Context, at time.Time) error {
		return s.Next(at).Without(s.opts.Exclude).Apply(streams)
	})
}

// Stop implements Source.
func (s *Simulator) Stop() { s.sched.Stop() }

// Done implements Source.
func (s *Simulator) Done() <-chan struct{} { return s.sched.Done() }

// Next advances every random walk one step and returns the reading.
func (s *Simulator) Next(at time.Time) Reading {
	values := make(map[Channel]float64, numChannels)
	for _, ch := range Channels {
		w := &s.walks[ch]
		pull := (w.stressTarget - w.value) * s.opts.Strain * 0.1
		w.value += pull + (s.rng.Float64()*2-1)*w.step
		if w.value < w.min {
			w.value = w.min
		}
		if w.value > w.max {
			w.value = w.max
		}
		values[ch] = w.value
	}
	return Reading{Time: at, Values: values}
}

var _ Source = (*Simulator)(nil)
