// Package obslog wraps zerolog with VT Code's logging discipline: log to a
// file rather than the interactive terminal, so the bubbletea UI is not
// interleaved with log lines. Init falls back to stdout only when the log
// file cannot be opened. Call sites pass a scope, a message, and an
// optional structured context map.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Level is a four-value severity enum layered on top of zerolog's levels.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

var global zerolog.Logger

// Init opens logPath (creating its directory) and configures the global
// logger at level, tagging every record with service. Falls back to
// stdout if the log directory/file cannot be created.
func Init(logPath string, level Level, service string) error {
	logDir := filepath.Dir(logPath)
	var out *os.File
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to create log directory %s: %v\n", logDir, err)
			out = os.Stdout
		}
	}
	if out == nil {
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to open log file %s: %v\n", logPath, err)
			out = os.Stdout
		} else {
			out = f
		}
	}

	global = zerolog.New(out).
		Level(level.zerolog()).
		With().
		Timestamp().
		Str("service", service).
		Logger()
	return nil
}

// Fields is the structured-context map call sites pass alongside a message.
type Fields map[string]any

func withFields(e *zerolog.Event, scope string, fields []Fields) *zerolog.Event {
	e = e.Str("scope", scope)
	if len(fields) > 0 {
		for k, v := range fields[0] {
			e = e.Interface(k, v)
		}
	}
	return e
}

// Info logs an info-level record under scope, with optional structured
// context (only the first Fields argument is used; the variadic spelling
// just makes the trailing argument optional at call sites).
func Info(scope, msg string, fields ...Fields) { withFields(global.Info(), scope, fields).Msg(msg) }

// Error logs an error-level record under scope.
func Error(scope, msg string, fields ...Fields) { withFields(global.Error(), scope, fields).Msg(msg) }

// Debug logs a debug-level record under scope.
func Debug(scope, msg string, fields ...Fields) { withFields(global.Debug(), scope, fields).Msg(msg) }

// Warn logs a warn-level record under scope.
func Warn(scope, msg string, fields ...Fields) { withFields(global.Warn(), scope, fields).Msg(msg) }
