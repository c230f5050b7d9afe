package retry

import (
	"context"
	"testing"
	"time"

	"github.com/bsv-blockchain/gcsync/errors"
	"github.com/bsv-blockchain/gcsync/ulogger"
	"github.com/bsv-blockchain/gcsync/util/test/mocklogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry(t *testing.T) {
	logger := mocklogger.NewTestLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	successFn := func() (string, error) {
		return "success", nil
	}

	staticCallCount := 0
	retryOnceFn := func() (string, error) {
		if staticCallCount == 0 {
			staticCallCount++
			return "", errors.NewProcessingError("error")
		}

		return "success", nil
	}

	alwaysFailFn := func() (string, error) {
		return "", errors.NewProcessingError("persistent error")
	}

	// succeeds on the first try
	result, err := Retry(ctx, logger, successFn, WithRetryCount(3), WithBackoffMultiplier(2), WithBackoffDurationType(time.Millisecond), WithMessage("Trying again"))
	require.NoError(t, err)
	assert.Equal(t, "success", result)
	logger.AssertNumberOfCalls(t, "Warnf", 0)
	logger.Reset()

	// fails once, then succeeds
	result, err = Retry(ctx, logger, retryOnceFn, WithRetryCount(3), WithBackoffDurationType(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "success", result)
	logger.AssertNumberOfCalls(t, "Warnf", 1)
	logger.Reset()

	// exhausts all attempts and returns the last error
	_, err = Retry(ctx, logger, alwaysFailFn, WithRetryCount(2), WithBackoffDurationType(time.Millisecond), WithMessage("resolving node0"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrProcessing))
	logger.AssertNumberOfCalls(t, "Warnf", 1)
	assert.True(t, logger.Contains("resolving node0, attempt 1 failed"))
	logger.Reset()

	// infinite retry ends with the context
	ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = Retry(ctx, logger, alwaysFailFn,
		WithInfiniteRetry(),
		WithExponentialBackoff(),
		WithBackoffDurationType(5*time.Millisecond),
		WithMaxBackoff(10*time.Millisecond))
	require.Error(t, err)
	assert.Equal(t, context.DeadlineExceeded, err)
}

func TestCappedExponentialBackoff(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, CappedExponentialBackoff(100*time.Millisecond, 2.0, time.Second))
	assert.Equal(t, time.Second, CappedExponentialBackoff(600*time.Millisecond, 2.0, time.Second))
	assert.Equal(t, 150*time.Millisecond, CappedExponentialBackoff(100*time.Millisecond, 1.5, time.Second))
}

func TestBackoffAndSleep(t *testing.T) {
	t.Run("cancels on context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := BackoffAndSleep(ctx, 2, 1, time.Hour)
		assert.Equal(t, context.Canceled, err)
	})

	t.Run("respects backoff calculation", func(t *testing.T) {
		originalSleepFunc := sleepFunc
		defer func() { sleepFunc = originalSleepFunc }()

		var recordedDuration time.Duration
		sleepFunc = func(ctx context.Context, d time.Duration) error {
			recordedDuration = d
			return nil
		}

		tests := []struct {
			retries    int
			multiplier int
			duration   time.Duration
			expected   time.Duration
		}{
			{0, 1, time.Second, 1 * time.Second},            // (0*1)+1 = 1
			{1, 2, time.Second, 3 * time.Second},            // (1*2)+1 = 3
			{3, 3, time.Second, 10 * time.Second},           // (3*3)+1 = 10
			{2, 5, time.Millisecond, 11 * time.Millisecond}, // (2*5)+1 = 11
		}

		for _, tc := range tests {
			require.NoError(t, BackoffAndSleep(context.Background(), tc.retries, tc.multiplier, tc.duration))
			assert.Equal(t, tc.expected, recordedDuration)
		}
	})
}

func TestRetryTimer(t *testing.T) {
	originalSleepFunc := sleepFunc
	defer func() { sleepFunc = originalSleepFunc }()

	var recordedSleeps []time.Duration
	sleepFunc = func(ctx context.Context, duration time.Duration) error {
		recordedSleeps = append(recordedSleeps, duration)
		return nil
	}

	tests := []struct {
		name           string
		options        []Options
		expectedSleeps []time.Duration
		simulateErrors int
		expectedError  bool
	}{
		{
			name:           "fail all retries",
			options:        []Options{WithRetryCount(3), WithBackoffMultiplier(1), WithBackoffDurationType(time.Millisecond)},
			expectedSleeps: []time.Duration{1 * time.Millisecond, 2 * time.Millisecond},
			simulateErrors: 3,
			expectedError:  true,
		},
		{
			name:           "succeeds on first try",
			options:        []Options{WithRetryCount(3), WithBackoffMultiplier(1), WithBackoffDurationType(time.Millisecond)},
			expectedSleeps: nil,
		},
		{
			name:           "success on last try",
			options:        []Options{WithRetryCount(3), WithBackoffMultiplier(1), WithBackoffDurationType(time.Millisecond)},
			expectedSleeps: []time.Duration{1 * time.Millisecond, 2 * time.Millisecond},
			simulateErrors: 2,
		},
		{
			name:           "exponential backoff is capped",
			options:        []Options{WithRetryCount(5), WithExponentialBackoff(), WithBackoffDurationType(time.Millisecond), WithMaxBackoff(3 * time.Millisecond)},
			expectedSleeps: []time.Duration{1 * time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond},
			simulateErrors: 3,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recordedSleeps = nil
			errorCount := 0

			f := func() (string, error) {
				if errorCount < tc.simulateErrors {
					errorCount++
					return "", errors.NewError("test error")
				}

				return "success", nil
			}

			_, err := Retry(context.Background(), ulogger.TestLogger{}, f, tc.options...)
			if tc.expectedError {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tc.expectedSleeps, recordedSleeps)
		})
	}
}
