package retry

import (
	"context"
	"time"

	"github.com/bsv-blockchain/gcsync/ulogger"
)

type SetOptions struct {
	Message             string
	RetryCount          int
	BackoffMultiplier   int
	BackoffDurationType time.Duration
	InfiniteRetry       bool
	ExponentialBackoff  bool
	BackoffFactor       float64
	MaxBackoff          time.Duration
}

type Options func(s *SetOptions)

func NewSetOptions(opts ...Options) *SetOptions {
	s := &SetOptions{
		Message:             "retrying",
		RetryCount:          3,
		BackoffMultiplier:   2,
		BackoffDurationType: time.Second,
		BackoffFactor:       2.0,
		MaxBackoff:          30 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func WithMessage(message string) Options {
	return func(s *SetOptions) {
		s.Message = message
	}
}

func WithRetryCount(retryCount int) Options {
	return func(s *SetOptions) {
		s.RetryCount = retryCount
	}
}

func WithBackoffMultiplier(backoffMultiplier int) Options {
	return func(s *SetOptions) {
		s.BackoffMultiplier = backoffMultiplier
	}
}

func WithBackoffDurationType(backoffDurationType time.Duration) Options {
	return func(s *SetOptions) {
		s.BackoffDurationType = backoffDurationType
	}
}

// WithInfiniteRetry keeps retrying until the function succeeds or the context is done.
func WithInfiniteRetry() Options {
	return func(s *SetOptions) {
		s.InfiniteRetry = true
	}
}

// WithExponentialBackoff starts at BackoffDurationType and multiplies by BackoffFactor
// after every failure, capped at MaxBackoff.
func WithExponentialBackoff() Options {
	return func(s *SetOptions) {
		s.ExponentialBackoff = true
	}
}

func WithBackoffFactor(factor float64) Options {
	return func(s *SetOptions) {
		s.BackoffFactor = factor
	}
}

func WithMaxBackoff(maxBackoff time.Duration) Options {
	return func(s *SetOptions) {
		s.MaxBackoff = maxBackoff
	}
}

// Retry calls f until it succeeds, the retry count is exhausted or the context is done.
// The error of the last attempt is returned when all attempts failed, the raw context
// error when the context ended first.
func Retry[T any](ctx context.Context, logger ulogger.Logger, f func() (T, error), opts ...Options) (T, error) {
	setOptions := NewSetOptions(opts...)

	var (
		result  T
		err     error
		backoff = setOptions.BackoffDurationType
	)

	for i := 0; setOptions.InfiniteRetry || i < setOptions.RetryCount; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}

		result, err = f()
		if err == nil {
			return result, nil
		}

		if !setOptions.InfiniteRetry && i == setOptions.RetryCount-1 {
			break
		}

		logger.Warnf("%s, attempt %d failed: %v", setOptions.Message, i+1, err)

		if setOptions.ExponentialBackoff {
			if sleepErr := sleepFunc(ctx, backoff); sleepErr != nil {
				return result, sleepErr
			}

			backoff = CappedExponentialBackoff(backoff, setOptions.BackoffFactor, setOptions.MaxBackoff)

			continue
		}

		if sleepErr := BackoffAndSleep(ctx, i, setOptions.BackoffMultiplier, setOptions.BackoffDurationType); sleepErr != nil {
			return result, sleepErr
		}
	}

	return result, err
}
