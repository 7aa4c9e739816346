package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every monitoring cycle.
type TickFunc func(ctx context.Context, cycle time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval       time.Duration
	AlignToStart   bool
	RunImmediately bool
	StartupDelay   time.Duration
}

// Scheduler drives periodic execution of monitoring cycles.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function on each cycle until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.RunImmediately {
		cycle := time.Now().UTC()
		s.logger.Info().Time("cycle", cycle).Msg("executing initial cycle")
		if err := tick(ctx, cycle); err != nil {
			s.logger.Error().Err(err).Time("cycle", cycle).Msg("cycle execution failed")
		}
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_cycle", next).Msg("waiting for next cycle")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		cycle := s.cycleStart(next)
		s.logger.Info().Time("cycle", cycle).Msg("executing scheduled cycle")

		if err := tick(ctx, cycle); err != nil {
			s.logger.Error().Err(err).Time("cycle", cycle).Msg("cycle execution failed")
		}

		next = next.Add(s.opts.Interval)
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

func (s *Scheduler) cycleStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
