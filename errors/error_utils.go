package errors

import (
	"context"
	"errors"
)

// IsQueryError reports whether err is a failed status query, i.e. the node could not
// be reached or answered with a malformed response.
func IsQueryError(err error) bool {
	return err != nil && Is(err, ErrQuery)
}

// IsTimeoutError reports whether err is a bounded wait that ran out of time.
func IsTimeoutError(err error) bool {
	return err != nil && Is(err, ErrTimeout)
}

// IsContextError reports whether err was caused by a cancelled or expired context.
func IsContextError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var tErr *Error
	if As(err, &tErr) {
		switch tErr.Code() {
		case ERR_CONTEXT, ERR_CONTEXT_CANCELED:
			return true
		}
	}

	return false
}

// FromContext converts a context error into an *Error, returns nil for a live context.
func FromContext(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return NewContextCanceledError("context canceled", err)
	default:
		return NewContextError("context error", err)
	}
}
