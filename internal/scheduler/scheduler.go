package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Archercober/Heat-Stroke-Prediction/internal/logging"
)

// MaxGranularity bounds how long a stop request can go unnoticed while the
// scheduler is waiting for its next tick.
const MaxGranularity = time.Second

// ErrAlreadyStarted is returned when Start or Run is called more than once.
var ErrAlreadyStarted = errors.New("scheduler: already started")

var errStopped = errors.New("scheduler: stopped")

// TickFunc is invoked once per interval.
type TickFunc func(ctx context.Context, firedAt time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	Granularity  time.Duration
	AlignToStart bool
	StartupDelay time.Duration
}

// Scheduler runs a callback at a fixed interval until stopped. A scheduler is
// single-use: once started it cannot be started again.
type Scheduler struct {
	name   string
	opts   Options
	logger zerolog.Logger

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stopped  atomic.Bool
	stopCh   chan struct{}
	done     chan struct{}
	ticks    atomic.Uint64
}

// New constructs a Scheduler instance.
func New(name string, opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.Granularity <= 0 || opts.Granularity > MaxGranularity {
		opts.Granularity = MaxGranularity
	}
	return &Scheduler{
		name:   name,
		opts:   opts,
		logger: logging.Component(logger, "scheduler").With().Str("task", name).Logger(),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Name returns the task name given at construction.
func (s *Scheduler) Name() string {
	return s.name
}

// Start runs the schedule on a new goroutine.
func (s *Scheduler) Start(ctx context.Context, tick TickFunc) error {
	if err := s.claim(); err != nil {
		return err
	}
	go func() {
		_ = s.loop(ctx, tick)
	}()
	return nil
}

// Run blocks, invoking tick once per interval until Stop is called or ctx is
// cancelled. It returns nil after Stop and ctx.Err() after cancellation.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if err := s.claim(); err != nil {
		return err
	}
	return s.loop(ctx, tick)
}

// Stop requests termination. It never interrupts a tick that is already
// running and is a no-op when the scheduler was never started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
	})
}

// Done is closed once the schedule loop has returned. It never closes for a
// scheduler that was not started.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Ticks reports how many ticks have completed.
func (s *Scheduler) Ticks() uint64 {
	return s.ticks.Load()
}

func (s *Scheduler) claim() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	return nil
}

func (s *Scheduler) loop(ctx context.Context, tick TickFunc) error {
	defer close(s.done)

	s.logger.Info().Dur("interval", s.opts.Interval).Msg("scheduler started")
	err := s.schedule(ctx, tick)
	if errors.Is(err, errStopped) {
		err = nil
	}
	s.logger.Info().Uint64("ticks", s.ticks.Load()).Msg("scheduler stopped")
	return err
}

func (s *Scheduler) schedule(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := s.sleepUntil(ctx, time.Now().Add(s.opts.StartupDelay)); err != nil {
			return err
		}
	}

	next := s.nextTick(time.Now())
	for {
		if now := time.Now(); next.Before(now) {
			// the previous tick overran; skip the slots it covered
			next = s.nextTick(now)
		}

		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")
		if err := s.sleepUntil(ctx, next); err != nil {
			return err
		}
		if s.stopped.Load() {
			return errStopped
		}

		fired := s.bucketStart(next)
		if err := tick(ctx, fired); err != nil {
			s.logger.Error().Err(err).Time("fired_at", fired).Msg("tick execution failed")
		}
		s.ticks.Add(1)

		next = next.Add(s.opts.Interval)
	}
}

// sleepUntil waits for deadline in slices no longer than the granularity,
// checking the stop flag between slices.
func (s *Scheduler) sleepUntil(ctx context.Context, deadline time.Time) error {
	for {
		if s.stopped.Load() {
			return errStopped
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining > s.opts.Granularity {
			remaining = s.opts.Granularity
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.stopCh:
			timer.Stop()
			return errStopped
		case <-timer.C:
		}
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
