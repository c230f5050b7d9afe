// Package wait polls a condition at a fixed interval until it holds, fails, or an
// optional deadline passes. Time comes from an injectable clock.
package wait

import (
	"context"
	"time"

	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/bsv-blockchain/gcsync/ulogger"
	"github.com/jonboulle/clockwork"
)

// Condition reports whether the awaited state has been reached. A non-nil error
// ends the wait immediately.
type Condition func(ctx context.Context) (bool, error)

type Options struct {
	interval    time.Duration
	deadline    time.Duration
	description string
	clock       clockwork.Clock
	logger      ulogger.Logger
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		interval:    time.Second,
		description: "condition",
		clock:       clockwork.NewRealClock(),
		logger:      ulogger.TestLogger{},
	}
}

func WithInterval(d time.Duration) Option {
	return func(o *Options) {
		o.interval = d
	}
}

// WithDeadline bounds the wait. Without it the wait only ends when the condition
// holds, errors, or the context is done.
func WithDeadline(d time.Duration) Option {
	return func(o *Options) {
		o.deadline = d
	}
}

// WithDescription names the awaited condition in logs and in the timeout error.
func WithDescription(description string) Option {
	return func(o *Options) {
		o.description = description
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *Options) {
		o.clock = clock
	}
}

func WithLogger(logger ulogger.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}

// Until evaluates cond, then sleeps the interval, until cond returns true or an error.
// The deadline is checked after each sleep, so cond is always evaluated at least once
// and a wait that times out has polled for at least the deadline.
func Until(ctx context.Context, cond Condition, opts ...Option) error {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if o.interval <= 0 {
		return errors.NewInvalidArgumentError("[wait] %s: poll interval must be positive, got %s", o.description, o.interval)
	}

	if o.deadline < 0 {
		return errors.NewInvalidArgumentError("[wait] %s: deadline must not be negative, got %s", o.description, o.deadline)
	}

	start := o.clock.Now()

	for attempt := 1; ; attempt++ {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}

		if ok {
			o.logger.Debugf("[wait] %s satisfied after %d polls in %s", o.description, attempt, o.clock.Since(start))
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.FromContext(ctx)
		case <-o.clock.After(o.interval):
		}

		if o.deadline > 0 && o.clock.Since(start) >= o.deadline {
			return errors.NewTimeoutError("%s timed out after %s", o.description, o.deadline)
		}
	}
}
