package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/config"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/logging"
	"github.com/Archercober/Heat-Stroke-Prediction/internal/scheduler"
)

var (
	// ErrShutdownTimeout is returned when tasks outlive the shutdown timeout.
	// The tasks are left running.
	ErrShutdownTimeout = errors.New("lifecycle: tasks did not stop before the shutdown timeout")
	// ErrAlreadyRunning is returned when starting a task that is running.
	ErrAlreadyRunning = errors.New("lifecycle: task already running")
	// ErrJoining is returned when starting a task while Wait is joining the
	// task group, including after a shutdown timeout until the tasks finish.
	ErrJoining = errors.New("lifecycle: tasks are being joined")
)

// Acquisition is the control side of the sensor layer.
type Acquisition interface {
	StartReading(ctx context.Context) error
	StopReading()
	Done() <-chan struct{}
}

// Cycle is the work the coordinator schedules.
type Cycle interface {
	PredictTick(ctx context.Context, firedAt time.Time) error
	PersistTick(ctx context.Context, firedAt time.Time) error
	SaveAll(ctx context.Context) error
}

// Options configure the coordinator.
type Options struct {
	PredictionInterval  time.Duration
	PersistenceInterval time.Duration
	Granularity         time.Duration
	AlignToStart        bool
	StartupDelay        time.Duration
	ShutdownTimeout     time.Duration
	// Interrupts delivered while StopAll waits are logged and ignored.
	Interrupts <-chan os.Signal
}

// OptionsFromConfig maps runtime configuration onto coordinator options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PredictionInterval:  cfg.Scheduler.PredictionInterval,
		PersistenceInterval: cfg.Scheduler.PersistenceInterval,
		Granularity:         cfg.Scheduler.Granularity,
		AlignToStart:        cfg.Scheduler.AlignToStart,
		StartupDelay:        cfg.Scheduler.StartupDelay,
		ShutdownTimeout:     cfg.Lifecycle.ShutdownTimeout,
	}
}

// Coordinator owns the acquisition handle and the prediction and persistence
// schedulers, and joins them on shutdown.
type Coordinator struct {
	opts   Options
	acq    Acquisition
	cycle  Cycle
	logger zerolog.Logger

	mu          sync.Mutex
	group       errgroup.Group
	joiners     int
	acquiring   bool
	prediction  *scheduler.Scheduler
	persistence *scheduler.Scheduler
}

// New constructs a coordinator.
func New(opts Options, acq Acquisition, cycle Cycle, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		opts:   opts,
		acq:    acq,
		cycle:  cycle,
		logger: logging.Component(logger, "lifecycle"),
	}
}

// Start begins acquisition, then the prediction and persistence schedules.
// On failure everything already started is stopped again.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.StartDataCollection(ctx); err != nil {
		return err
	}
	if err := c.StartPredictionCycle(ctx); err != nil {
		c.stopAcquisition()
		return err
	}
	if err := c.StartPersistence(ctx); err != nil {
		c.StopPredictionCycle()
		c.stopAcquisition()
		return err
	}
	return nil
}

// StartDataCollection starts the acquisition sources.
func (c *Coordinator) StartDataCollection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.joiners > 0 {
		return ErrJoining
	}
	if c.acquiring {
		return ErrAlreadyRunning
	}
	if err := c.acq.StartReading(ctx); err != nil {
		return fmt.Errorf("start data collection: %w", err)
	}
	c.acquiring = true

	done := c.acq.Done()
	c.group.Go(func() error {
		<-done
		c.logger.Info().Msg("data collection stopped")
		return nil
	})
	c.logger.Info().Msg("data collection started")
	return nil
}

// StartPredictionCycle schedules a prediction every prediction interval.
func (c *Coordinator) StartPredictionCycle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.joiners > 0 {
		return ErrJoining
	}
	if c.prediction != nil {
		return fmt.Errorf("prediction: %w", ErrAlreadyRunning)
	}
	c.prediction = c.launch(ctx, "prediction", c.opts.PredictionInterval, c.cycle.PredictTick)
	return nil
}

// StopPredictionCycle asks the prediction schedule to stop. An in-flight
// prediction is allowed to finish.
func (c *Coordinator) StopPredictionCycle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.prediction != nil {
		c.prediction.Stop()
		c.prediction = nil
	}
}

// StartPersistence schedules SaveAll every persistence interval.
func (c *Coordinator) StartPersistence(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.joiners > 0 {
		return ErrJoining
	}
	if c.persistence != nil {
		return fmt.Errorf("persistence: %w", ErrAlreadyRunning)
	}
	c.persistence = c.launch(ctx, "persistence", c.opts.PersistenceInterval, c.cycle.PersistTick)
	return nil
}

// StopPersistence asks the persistence schedule to stop.
func (c *Coordinator) StopPersistence() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.persistence != nil {
		c.persistence.Stop()
		c.persistence = nil
	}
}

// SaveAll merges and persists everything collected so far.
func (c *Coordinator) SaveAll(ctx context.Context) error {
	return c.cycle.SaveAll(ctx)
}

// StopAll stops prediction, then acquisition, then persistence. With wait it
// blocks until every task has returned, the shutdown timeout elapses or ctx
// is done.
func (c *Coordinator) StopAll(ctx context.Context, wait bool) error {
	c.StopPredictionCycle()
	c.stopAcquisition()
	c.StopPersistence()
	c.logger.Info().Bool("wait", wait).Msg("stop requested")

	if !wait {
		return nil
	}
	return c.Wait(ctx)
}

// Wait joins every task started so far without stopping anything. Starts
// fail with ErrJoining until the join completes; when Wait gives up early the
// join carries on in the background.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	c.joiners++
	c.mu.Unlock()

	joined := make(chan error, 1)
	go func() {
		err := c.group.Wait()
		c.mu.Lock()
		c.joiners--
		c.mu.Unlock()
		joined <- err
	}()

	var timeout <-chan time.Time
	if c.opts.ShutdownTimeout > 0 {
		timer := time.NewTimer(c.opts.ShutdownTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case err := <-joined:
			if err == nil {
				c.logger.Info().Msg("all tasks stopped")
			}
			return err
		case sig := <-c.opts.Interrupts:
			c.logger.Warn().Str("signal", fmt.Sprint(sig)).Msg("interrupt ignored while waiting for tasks to stop")
		case <-timeout:
			return ErrShutdownTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Coordinator) stopAcquisition() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.acquiring {
		c.acq.StopReading()
		c.acquiring = false
	}
}

// launch starts a scheduler inside the task group. Callers hold c.mu.
func (c *Coordinator) launch(ctx context.Context, name string, interval time.Duration, tick scheduler.TickFunc) *scheduler.Scheduler {
	sched := scheduler.New(name, scheduler.Options{
		Interval:     interval,
		Granularity:  c.opts.Granularity,
		AlignToStart: c.opts.AlignToStart,
		StartupDelay: c.opts.StartupDelay,
	}, c.logger)

	// Start, not Run: the scheduler must be claimed before a Stop can arrive.
	_ = sched.Start(ctx, tick)
	c.group.Go(func() error {
		<-sched.Done()
		return nil
	})
	return sched
}
