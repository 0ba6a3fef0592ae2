package logger

import (
	"io"
	"os"
	"time"

	"codeberg.org/mutker/upsguard/internal/errors"
	"github.com/rs/zerolog"
)

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

type zeroLogger struct {
	log zerolog.Logger
}

// New creates a console logger writing to stdout at the given level
func New(level LogLevel, isService bool) Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	return NewWithWriter(output, level)
}

// NewWithWriter creates a logger writing JSON events to w
func NewWithWriter(w io.Writer, level LogLevel) Logger {
	log := zerolog.New(w).
		Level(zerolog.Level(level)).
		With().Timestamp().Logger()

	return &zeroLogger{log: log}
}

// Nop returns a logger that discards everything
func Nop() Logger {
	return &zeroLogger{log: zerolog.Nop()}
}

// ParseLevel maps a configured level name to a LogLevel
func ParseLevel(level string) (LogLevel, error) {
	switch level {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warning", "warn":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, level)
	}
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return isProcessGroupLeader()
}

func (l *zeroLogger) Debug() *LogEvent {
	return &LogEvent{l.log.Debug()}
}

func (l *zeroLogger) Info() *LogEvent {
	return &LogEvent{l.log.Info()}
}

func (l *zeroLogger) Warn() *LogEvent {
	return &LogEvent{l.log.Warn()}
}

func (l *zeroLogger) Error() *LogEvent {
	return &LogEvent{l.log.Error()}
}

// ErrorWithCode logs an error message with its error code
func (l *zeroLogger) ErrorWithCode(err errors.Error) *LogEvent {
	return &LogEvent{l.log.Error().
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

func (l *zeroLogger) With(key, value string) Logger {
	return &zeroLogger{log: l.log.With().Str(key, value).Logger()}
}
