package ulogger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ordishs/gocore"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

type ZLoggerWrapper struct {
	zerolog.Logger
	service string
	w       io.Writer
	skip    int
	pretty  bool
}

func NewZeroLogger(service string, options ...Option) *ZLoggerWrapper {
	if service == "" {
		service = "gcsync"
	}

	opts := DefaultOptions()
	for _, o := range options {
		o(opts)
	}

	var z *ZLoggerWrapper
	if opts.prettyLogs {
		z = prettyZeroLogger(opts.writer, service, opts.skip)
	} else {
		z = &ZLoggerWrapper{
			zerolog.New(opts.writer).With().
				Str("service", service).
				CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + opts.skip).
				Timestamp().
				Logger(),
			service,
			opts.writer,
			opts.skip,
			false,
		}
	}

	z.SetLogLevel(opts.logLevel)
	z.Logger.Debug().Msgf("Zerolog logger initialized with level %s", opts.logLevel)

	return z
}

func prettyZeroLogger(writer io.Writer, service string, skip int) *ZLoggerWrapper {
	isTerminal := false
	if f, ok := writer.(*os.File); ok {
		isTerminal = term.IsTerminal(int(f.Fd()))
	}

	output := zerolog.ConsoleWriter{
		Out:        writer,
		NoColor:    !isTerminal,
		TimeFormat: time.RFC3339,
	}

	output.FormatTimestamp = func(i interface{}) string {
		s, _ := i.(string)
		parse, _ := time.Parse(time.RFC3339, s)

		return parse.Format("15:04:05")
	}

	output.FormatLevel = func(i interface{}) string {
		l := strings.ToUpper(fmt.Sprintf("%-6s", i))

		// colorize the levels in same way as gocore
		switch i {
		case "debug":
			l = colorize(l, colorBlue, !isTerminal)
		case "info":
			l = colorize(l, colorGreen, !isTerminal)
		case "warn":
			l = colorize(l, colorYellow, !isTerminal)
		case "error", "fatal", "panic":
			l = colorize(l, colorRed, !isTerminal)
		default:
			l = colorize(l, colorWhite, !isTerminal)
		}

		return fmt.Sprintf("| %s|", l)
	}

	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("| %-6s| %s", service, i)
	}

	output.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("%s:", i)
	}

	output.FormatFieldValue = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("%s", i))
	}

	output.FormatCaller = func(i interface{}) string {
		c, _ := i.(string)
		if len(c) == 0 {
			return c
		}

		if cwd, err := os.Getwd(); err == nil {
			if rel, err := filepath.Rel(cwd, c); err == nil {
				c = rel
			}
		}

		// keep as many trailing path elements as fit in 32 chars
		split := strings.Split(c, "/")
		currentElement := len(split) - 1
		c = split[currentElement]
		currentElement--

		for currentElement >= 0 && len(c)+len(split[currentElement])+1 <= 32 {
			c = split[currentElement] + "/" + c
			currentElement--
		}

		return colorize(fmt.Sprintf("%-32s", c), colorBold, !isTerminal)
	}

	return &ZLoggerWrapper{
		zerolog.New(output).With().
			CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + skip).
			Timestamp().
			Logger(),
		service,
		writer,
		skip,
		true,
	}
}

func (z *ZLoggerWrapper) New(service string, options ...Option) Logger {
	opts := &Options{
		writer:     z.w,
		loggerType: "zerolog",
		logLevel:   strings.ToUpper(z.Logger.GetLevel().String()),
		skip:       z.skip,
		prettyLogs: z.pretty,
	}

	for _, o := range options {
		o(opts)
	}

	// make sure we set the same options as the parent
	return NewZeroLogger(service,
		WithWriter(opts.writer),
		WithLoggerType(opts.loggerType),
		WithLevel(opts.logLevel),
		WithSkipFrame(opts.skip),
		WithPrettyLogs(opts.prettyLogs),
	)
}

func (z *ZLoggerWrapper) Duplicate(options ...Option) Logger {
	opts := &Options{
		writer:   z.w,
		logLevel: strings.ToUpper(z.Logger.GetLevel().String()),
		skip:     z.skip,
	}

	for _, o := range options {
		o(opts)
	}

	dup := &ZLoggerWrapper{z.Logger, z.service, z.w, z.skip, z.pretty}
	if opts.writer != z.w {
		dup = &ZLoggerWrapper{z.Logger.Output(opts.writer), z.service, opts.writer, z.skip, z.pretty}
	}

	dup.SetLogLevel(opts.logLevel)

	return dup
}

func (z *ZLoggerWrapper) SetLogLevel(logLevel string) {
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		z.Logger = z.Logger.Level(zerolog.DebugLevel)
	case "INFO":
		z.Logger = z.Logger.Level(zerolog.InfoLevel)
	case "WARN":
		z.Logger = z.Logger.Level(zerolog.WarnLevel)
	case "ERROR":
		z.Logger = z.Logger.Level(zerolog.ErrorLevel)
	case "FATAL":
		z.Logger = z.Logger.Level(zerolog.FatalLevel)
	case "PANIC":
		z.Logger = z.Logger.Level(zerolog.PanicLevel)
	default:
		z.Logger = z.Logger.Level(zerolog.InfoLevel)
	}
}

func (z *ZLoggerWrapper) LogLevel() int {
	switch z.Logger.GetLevel() {
	case zerolog.DebugLevel:
		return int(gocore.DEBUG)
	case zerolog.InfoLevel:
		return int(gocore.INFO)
	case zerolog.WarnLevel:
		return int(gocore.WARN)
	case zerolog.ErrorLevel:
		return int(gocore.ERROR)
	case zerolog.FatalLevel:
		return int(gocore.FATAL)
	default:
		return int(gocore.INFO)
	}
}

func (z *ZLoggerWrapper) Debugf(format string, args ...interface{}) {
	z.Logger.Debug().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Infof(format string, args ...interface{}) {
	z.Logger.Info().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Warnf(format string, args ...interface{}) {
	z.Logger.Warn().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Errorf(format string, args ...interface{}) {
	z.Logger.Error().Msgf(format, args...)
}

func (z *ZLoggerWrapper) Fatalf(format string, args ...interface{}) {
	z.Logger.Fatal().Msgf(format, args...)
}

// With creates a child logger with the field added to its context.
func (z *ZLoggerWrapper) With() zerolog.Context {
	return z.Logger.With()
}

// Write implements the io.Writer interface. This is useful to set as a writer
// for the standard library log.
func (z *ZLoggerWrapper) Write(p []byte) (n int, err error) {
	return z.Logger.Write(p)
}

// colorize returns the string s wrapped in ANSI code c, unless disabled is true or c is 0.
func colorize(s interface{}, c int, disabled bool) string {
	e := os.Getenv("NO_COLOR")
	if e != "" || c == 0 {
		disabled = true
	}

	if disabled {
		return fmt.Sprintf("%s", s)
	}

	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}
