package errors

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

type Error struct {
	code       ERR
	message    string
	wrappedErr error
}

type Interface interface {
	Error() string
	Is(target error) bool
	As(target interface{}) bool
	Unwrap() error

	Code() ERR
	Message() string
	WrappedErr() error
}

func (e *Error) Error() string {
	// Error() can be called on wrapped errors, which can be nil, for example predefined errors
	if e == nil {
		return "<nil>"
	}

	if e.wrappedErr == nil {
		return fmt.Sprintf("Error: %s (error code: %d), Message: %v", e.code, e.code, e.message)
	}

	return fmt.Sprintf("Error: %s (error code: %d), Message: %v, Wrapped err: %v", e.code, e.code, e.message, e.wrappedErr)
}

// Is reports whether error codes match.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}

	targetError, ok := target.(*Error)
	if !ok {
		if e.wrappedErr != nil && errors.Is(e.wrappedErr, target) {
			return true
		}

		return strings.Contains(e.Error(), target.Error())
	}

	if e.code == targetError.code {
		return true
	}

	if e.wrappedErr == nil {
		return false
	}

	// Unwrap the current error and recursively call Is on the unwrapped error
	if ue, ok := e.wrappedErr.(*Error); ok {
		return ue.Is(target)
	}

	return false
}

func (e *Error) As(target interface{}) bool {
	if e == nil {
		return false
	}

	// Try to assign this error to the target if the types are compatible
	if targetErr, ok := target.(**Error); ok {
		*targetErr = e
		return true
	}

	if e.wrappedErr != nil {
		// use reflect to see if the value is nil. If it is, return false
		if v := reflect.ValueOf(e.wrappedErr); v.Kind() == reflect.Ptr && v.IsNil() {
			return false
		}

		return errors.As(e.wrappedErr, target)
	}

	return false
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.wrappedErr
}

func (e *Error) Code() ERR {
	if e == nil {
		return ERR_UNKNOWN
	}

	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}

	return e.message
}

func (e *Error) WrappedErr() error {
	if e == nil {
		return nil
	}

	return e.wrappedErr
}

// New creates an *Error with the given code. When the last param is an error it is
// wrapped, the remaining params are used to format the message.
func New(code ERR, message string, params ...interface{}) *Error {
	var wErr error

	// Extract the wrapped error, if present
	if len(params) > 0 {
		lastParam := params[len(params)-1]

		switch err := lastParam.(type) {
		case *Error:
			if err != nil {
				wErr = err
			}

			params = params[:len(params)-1]
		case error:
			wErr = err
			params = params[:len(params)-1]
		case nil:
			params = params[:len(params)-1]
		}
	}

	// Format the message with the remaining parameters
	if len(params) > 0 {
		message = fmt.Sprintf(message, params...)
	}

	// Check if the code exists in the ERR enum
	if _, ok := ERR_name[int32(code)]; !ok {
		return &Error{
			code:       code,
			message:    "invalid error code",
			wrappedErr: wErr,
		}
	}

	return &Error{
		code:       code,
		message:    message,
		wrappedErr: wErr,
	}
}

func Join(errs ...error) error {
	var messages []string

	for _, err := range errs {
		if err != nil {
			messages = append(messages, err.Error())
		}
	}

	if len(messages) == 0 {
		return nil
	}

	return errors.New(strings.Join(messages, ", "))
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	// cycle through the wrapped errors and check if any of them match the target
	if castedErr, ok := err.(*Error); ok {
		if castedErr.As(target) {
			return true
		}
	}

	return errors.As(err, target)
}
