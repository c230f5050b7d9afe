package ulogger

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

type TestingT interface {
	Errorf(format string, args ...interface{})
	FailNow()
	Logf(format string, args ...any)
}

type tHelper = interface {
	Helper()
}

// ErrorTestLogger only surfaces Errorf and Fatalf, prefixed with the caller location.
// With failOnError set, an error log also fails the test and calls the cancel function.
type ErrorTestLogger struct {
	t           TestingT
	failOnError atomic.Bool
	cancelFn    func()
	shutdown    atomic.Bool // Prevents logging after test cleanup
}

func NewErrorTestLogger(t TestingT, cancelFn ...func()) *ErrorTestLogger {
	l := &ErrorTestLogger{t: t}
	if len(cancelFn) > 0 {
		l.cancelFn = cancelFn[0]
	}

	return l
}

func (l *ErrorTestLogger) SetCancelFn(cancelFn func()) {
	l.cancelFn = cancelFn
}

// FailOnError makes any subsequent Errorf or Fatalf fail the test.
func (l *ErrorTestLogger) FailOnError(fail bool) {
	l.failOnError.Store(fail)
}

// Shutdown marks the logger as shutdown, preventing further access to testing.T
// This should be called before test cleanup to avoid race conditions
func (l *ErrorTestLogger) Shutdown() {
	l.shutdown.Store(true)
}

func (l *ErrorTestLogger) LogLevel() int {
	return 0
}

func (l *ErrorTestLogger) SetLogLevel(level string) {}

func (l *ErrorTestLogger) New(service string, options ...Option) Logger {
	return l
}

func (l *ErrorTestLogger) Duplicate(options ...Option) Logger {
	return l
}

func (l *ErrorTestLogger) Debugf(format string, args ...interface{}) {}

func (l *ErrorTestLogger) Infof(format string, args ...interface{}) {}

func (l *ErrorTestLogger) Warnf(format string, args ...interface{}) {}

func (l *ErrorTestLogger) Errorf(format string, args ...interface{}) {
	l.log("ERR_LEVEL", format, args...)
}

func (l *ErrorTestLogger) Fatalf(format string, args ...interface{}) {
	l.log("FATAL_LEVEL", format, args...)
}

func (l *ErrorTestLogger) log(level string, format string, args ...interface{}) {
	// Don't access testing.T if logger is shutdown (test is cleaning up)
	if l.shutdown.Load() {
		return
	}

	if h, ok := l.t.(tHelper); ok {
		h.Helper()
	}

	_, file, line, _ := runtime.Caller(2)

	l.t.Logf(fmt.Sprintf("%s:%d: %s %s", file, line, level, format), args...)

	if !l.failOnError.Load() {
		return
	}

	if l.cancelFn != nil {
		l.cancelFn()
	}

	l.t.Errorf("%s logged while failOnError is set", level)
}
