package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Log is the global logger instance wrapper
var Log *Logger

type Logger struct {
	z zerolog.Logger
}

func init() {
	Log = New(os.Stderr, "info", "console")
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New builds a logger writing to w. format "json" emits raw JSON lines,
// anything else uses the console writer.
func New(w io.Writer, level string, format string) *Logger {
	out := w
	if strings.ToLower(format) != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	z := zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Logger()
	return &Logger{z: z}
}

// Setup configures the global logger
func Setup(level string, format string) {
	Log = New(os.Stderr, level, format)
}

// With returns a child logger carrying the given key-value pairs on every event.
func (l *Logger) With(args ...interface{}) *Logger {
	ctx := l.z.With()
	for i := 0; i+1 < len(args); i += 2 {
		ctx = ctx.Interface(keyOf(args[i]), args[i+1])
	}
	return &Logger{z: ctx.Logger()}
}

// WithLevel returns a copy of the logger filtered at level.
func (l *Logger) WithLevel(level string) *Logger {
	return &Logger{z: l.z.Level(ParseLevel(level))}
}

// Enabled reports whether events at level would be written.
func (l *Logger) Enabled(level zerolog.Level) bool {
	return l.z.GetLevel() <= level
}

// Info logs at Info level with variadic key-value pairs
func (l *Logger) Info(msg string, args ...interface{}) {
	e := l.z.Info()
	addFields(e, args...)
	e.Msg(msg)
}

// Debug logs at Debug level with variadic key-value pairs
func (l *Logger) Debug(msg string, args ...interface{}) {
	e := l.z.Debug()
	addFields(e, args...)
	e.Msg(msg)
}

// Warn logs at Warn level with variadic key-value pairs
func (l *Logger) Warn(msg string, args ...interface{}) {
	e := l.z.Warn()
	addFields(e, args...)
	e.Msg(msg)
}

// Error logs at Error level with variadic key-value pairs
func (l *Logger) Error(msg string, args ...interface{}) {
	e := l.z.Error()
	addFields(e, args...)
	e.Msg(msg)
}

func keyOf(k interface{}) string {
	if s, ok := k.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", k)
}

// addFields adds variadic key-value pairs to the event. Errors are
// rendered with their message rather than marshalled as structs.
func addFields(e *zerolog.Event, args ...interface{}) {
	if e == nil {
		return
	}
	for i := 0; i+1 < len(args); i += 2 {
		key := keyOf(args[i])
		switch v := args[i+1].(type) {
		case error:
			e.AnErr(key, v)
		case time.Duration:
			e.Dur(key, v)
		default:
			e.Interface(key, v)
		}
	}
}
