package ulogger

import (
	"io"
	"os"
)

type Options struct {
	logLevel   string
	loggerType string
	writer     io.Writer
	skip       int
	prettyLogs bool
}

type Option func(*Options)

func DefaultOptions() *Options {
	return &Options{
		logLevel:   "INFO",
		loggerType: "zerolog",
		writer:     os.Stdout,
		skip:       1,
		prettyLogs: true,
	}
}

func WithLevel(level string) Option {
	return func(o *Options) {
		o.logLevel = level
	}
}

func WithLoggerType(loggerType string) Option {
	return func(o *Options) {
		o.loggerType = loggerType
	}
}

// WithWriter sets the output of the zerolog backend. The gocore backend ignores it.
func WithWriter(w io.Writer) Option {
	return func(o *Options) {
		o.writer = w
	}
}

func WithSkipFrame(skip int) Option {
	return func(o *Options) {
		o.skip = skip
	}
}

// WithPrettyLogs selects the console format of the zerolog backend, JSON lines otherwise.
func WithPrettyLogs(pretty bool) Option {
	return func(o *Options) {
		o.prettyLogs = pretty
	}
}
