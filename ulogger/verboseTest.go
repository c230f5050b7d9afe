package ulogger

import (
	"sync"
	"testing"
)

// VerboseTestLogger sends every level to t.Logf, Fatalf fails the test.
type VerboseTestLogger struct {
	t     *testing.T
	mutex sync.Mutex
}

func NewVerboseTestLogger(t *testing.T) *VerboseTestLogger {
	return &VerboseTestLogger{t: t}
}

func (l *VerboseTestLogger) LogLevel() int {
	return 0
}

func (l *VerboseTestLogger) SetLogLevel(level string) {}

func (l *VerboseTestLogger) New(service string, options ...Option) Logger {
	return l
}

func (l *VerboseTestLogger) Duplicate(options ...Option) Logger {
	return l
}

func (l *VerboseTestLogger) Debugf(format string, args ...interface{}) {
	l.logf("[DEBUG] "+format, args...)
}

func (l *VerboseTestLogger) Infof(format string, args ...interface{}) {
	l.logf("[INFO] "+format, args...)
}

func (l *VerboseTestLogger) Warnf(format string, args ...interface{}) {
	l.logf("[WARN] "+format, args...)
}

func (l *VerboseTestLogger) Errorf(format string, args ...interface{}) {
	l.logf("[ERROR] "+format, args...)
}

func (l *VerboseTestLogger) Fatalf(format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.t == nil {
		return
	}

	l.t.Fatalf("[FATAL] "+format, args...)
}

func (l *VerboseTestLogger) logf(format string, args ...interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.t == nil {
		return
	}

	l.t.Logf(format, args...)
}
