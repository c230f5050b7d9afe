package ulogger

// TestLogger discards everything.
type TestLogger struct{}

func (l TestLogger) LogLevel() int { return 0 }
func (l TestLogger) SetLogLevel(string) {}
func (l TestLogger) Debugf(string, ...interface{}) {}
func (l TestLogger) Infof(string, ...interface{}) {}
func (l TestLogger) Warnf(string, ...interface{}) {}
func (l TestLogger) Errorf(string, ...interface{}) {}
func (l TestLogger) Fatalf(string, ...interface{}) {}
func (l TestLogger) New(string, ...Option) Logger { return TestLogger{} }
func (l TestLogger) Duplicate(...Option) Logger { return TestLogger{} }
