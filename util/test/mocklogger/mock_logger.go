// Package mocklogger provides a ulogger.Logger that records calls and messages
// so tests can assert on what was logged.
package mocklogger

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/bsv-blockchain/gcsync/ulogger"
)

type MockLogger struct {
	mu       sync.Mutex
	calls    map[string]int
	messages []string
}

func NewTestLogger() *MockLogger {
	return &MockLogger{
		calls: make(map[string]int),
	}
}

func (l *MockLogger) LogLevel() int {
	return 0
}

func (l *MockLogger) SetLogLevel(_ string) {}

// New returns the same logger so calls from child loggers are counted as well.
func (l *MockLogger) New(_ string, _ ...ulogger.Option) ulogger.Logger {
	return l
}

func (l *MockLogger) Duplicate(_ ...ulogger.Option) ulogger.Logger {
	return l
}

func (l *MockLogger) Debugf(format string, args ...interface{}) {
	l.recordCall("Debugf", format, args...)
}

func (l *MockLogger) Infof(format string, args ...interface{}) {
	l.recordCall("Infof", format, args...)
}

func (l *MockLogger) Warnf(format string, args ...interface{}) {
	l.recordCall("Warnf", format, args...)
}

func (l *MockLogger) Errorf(format string, args ...interface{}) {
	l.recordCall("Errorf", format, args...)
}

func (l *MockLogger) Fatalf(format string, args ...interface{}) {
	l.recordCall("Fatalf", format, args...)
}

func (l *MockLogger) recordCall(methodName string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls[methodName]++
	l.messages = append(l.messages, methodName+": "+fmt.Sprintf(format, args...))
}

// AssertNumberOfCalls is a test helper that verifies the expected number of calls to a method.
func (l *MockLogger) AssertNumberOfCalls(t *testing.T, methodName string, expectedCalls int) {
	t.Helper()

	l.mu.Lock()
	defer l.mu.Unlock()

	if actualCalls := l.calls[methodName]; actualCalls != expectedCalls {
		t.Errorf("Expected %v calls to %s, got %v", expectedCalls, methodName, actualCalls)
	}
}

func (l *MockLogger) Calls(methodName string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.calls[methodName]
}

// Contains reports whether any logged message contains s.
func (l *MockLogger) Contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range l.messages {
		if strings.Contains(m, s) {
			return true
		}
	}

	return false
}

func (l *MockLogger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls = make(map[string]int)
	l.messages = nil
}
