// Package hammerlog is the structured-logging package every other
// hammertime package logs through: a thin zerolog wrapper that gives
// ambient code (the memory-system loader, the flip loops, the demo CLI)
// one consistent Debug/Info/Warn/Error surface instead of each package
// picking its own.
package hammerlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level names accepted by a Config and by pkg/hamconfig's YAML.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects the zerolog writer: structured JSON or a console-
// friendly renderer.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config configures a Logger.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer
}

// Logger wraps a zerolog.Logger with the handful of calls hammertime's
// packages need, keeping zerolog itself out of their import lists.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger from cfg, defaulting Output to os.Stderr (events
// logged here are diagnostics, not the program's primary output) and an
// unrecognised Level to LevelInfo.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	out := cfg.Output
	if cfg.Format == FormatText {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: time.RFC3339, NoColor: false}
	}

	z := zerolog.New(out).With().Timestamp().Logger()
	switch cfg.Level {
	case LevelDebug:
		z = z.Level(zerolog.DebugLevel)
	case LevelWarn:
		z = z.Level(zerolog.WarnLevel)
	case LevelError:
		z = z.Level(zerolog.ErrorLevel)
	default:
		z = z.Level(zerolog.InfoLevel)
	}
	return &Logger{z: z}
}

// Nop returns a Logger that discards everything, for code paths (tests,
// library callers that don't want hammertime chattering) that don't want
// to configure an Output.
func Nop() *Logger {
	return &Logger{z: zerolog.Nop()}
}

func (l *Logger) event(ev *zerolog.Event, msg string, fields ...any) {
	if len(fields)%2 != 0 {
		ev.Str("logerr", "odd number of fields").Msg(msg)
		return
	}
	for i := 0; i < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ev.Interface(key, fields[i+1])
	}
	ev.Msg(msg)
}

// Debug logs msg at debug level with alternating key/value fields.
func (l *Logger) Debug(msg string, fields ...any) { l.event(l.z.Debug(), msg, fields...) }

// Info logs msg at info level with alternating key/value fields.
func (l *Logger) Info(msg string, fields ...any) { l.event(l.z.Info(), msg, fields...) }

// Warn logs msg at warn level with alternating key/value fields.
func (l *Logger) Warn(msg string, fields ...any) { l.event(l.z.Warn(), msg, fields...) }

// Error logs msg at error level with alternating key/value fields.
func (l *Logger) Error(msg string, fields ...any) { l.event(l.z.Error(), msg, fields...) }

// With returns a child Logger carrying an additional field on every
// subsequent call, e.g. a per-flip-loop "mode" tag.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{z: l.z.With().Interface(key, value).Logger()}
}
