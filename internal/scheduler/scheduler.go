package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultGrace is how late a start may be while still firing today.
const DefaultGrace = time.Minute

// TaskFunc is one periodic unit of work.
type TaskFunc func(ctx context.Context) error

// Task names a periodic job.
type Task struct {
	Name string
	Run  TaskFunc
}

// FailureFunc is called after a task returns an error or panics.
type FailureFunc func(ctx context.Context, task string, err error)

// Options tune scheduler behaviour.
type Options struct {
	TimeOfDay string
	Location  *time.Location
	Grace     time.Duration
	Period    time.Duration
	OnFailure FailureFunc
	Now       func() time.Time
}

// Scheduler fires every task at the same aligned instant and then on a fixed
// period, each on its own goroutine.
type Scheduler struct {
	hour, minute int
	opts         Options
	logger       zerolog.Logger
}

// New validates options and constructs a Scheduler.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	hour, minute, err := ParseTimeOfDay(opts.TimeOfDay)
	if err != nil {
		return nil, err
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Grace < 0 {
		return nil, errors.New("scheduler grace cannot be negative")
	}
	if opts.Period <= 0 {
		opts.Period = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		hour:   hour,
		minute: minute,
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// ParseTimeOfDay parses an HH:MM wall-clock time.
func ParseTimeOfDay(raw string) (int, int, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", raw, err)
	}
	return t.Hour(), t.Minute(), nil
}

// FirstFire returns the first fire instant for a daily target. A target more
// than grace in the past moves to tomorrow; a target inside the grace window
// fires immediately.
func FirstFire(now time.Time, hour, minute int, grace time.Duration) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	switch {
	case now.After(target.Add(grace)):
		return target.AddDate(0, 0, 1)
	case now.Before(target):
		return target
	default:
		return now
	}
}

// Next reports the first fire instant relative to the configured clock.
func (s *Scheduler) Next() time.Time {
	now := s.opts.Now().In(s.opts.Location)
	return FirstFire(now, s.hour, s.minute, s.opts.Grace)
}

// Run blocks until ctx is cancelled. All tasks share one first-fire instant.
func (s *Scheduler) Run(ctx context.Context, tasks ...Task) error {
	first := s.Next()
	s.logger.Info().Time("first_fire", first).Dur("period", s.opts.Period).Int("tasks", len(tasks)).Msg("scheduler started")

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error {
			return s.loop(gctx, first, task)
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, first time.Time, task Task) error {
	delay := first.Sub(s.opts.Now())
	if delay < 0 {
		delay = 0
	}
	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
	}

	ticker := time.NewTicker(s.opts.Period)
	defer ticker.Stop()
	for {
		s.execute(ctx, task)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, task Task) {
	logger := s.logger.With().Str("task", task.Name).Logger()
	logger.Info().Msg("executing scheduled task")

	err := runSafely(ctx, task.Run)
	if err == nil {
		return
	}
	logger.Error().Err(err).Msg("scheduled task failed")
	if s.opts.OnFailure != nil {
		s.opts.OnFailure(ctx, task.Name, err)
	}
}

func runSafely(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}
