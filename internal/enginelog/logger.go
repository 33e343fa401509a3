// Package enginelog wraps logrus.Logger the way infrastructure/logging and
// pkg/logger do in the teacher repository: a thin struct embedding
// *logrus.Logger, constructed with an explicit level/format rather than a
// package-level global, plus a Diagnostic hook the engine's public API
// (see package engine) drains as a channel for the CLI's "iterator over
// diagnostics" (spec.md §6).
package enginelog

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with a service name, mirroring
// infrastructure/logging.Logger.
type Logger struct {
	*logrus.Logger
	Component string
}

// Config controls logger construction.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "text"
}

// New builds a Logger writing to stdout, matching
// infrastructure/logging.New's formatter selection.
func New(component string, cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, Component: component}
}

// NewDefault returns a Logger at info/text level, for callers (tests,
// small tools) that don't need configuration plumbing.
func NewDefault(component string) *Logger {
	return New(component, Config{Level: "info", Format: "text"})
}

// WithFields returns a *logrus.Entry tagged with this logger's component
// plus the supplied fields, matching infrastructure/logging's field
// convention (event_type, scenario, trace_id).
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	fields["component"] = l.Component
	return l.Logger.WithFields(fields)
}

// Diagnostic is one structured log line surfaced to the CLI as an
// iterator, per spec.md §6's "run(spec, options) ... and an iterator
// over diagnostics".
type Diagnostic struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// Hook forwards logrus entries onto a bounded channel of Diagnostics. A
// full channel drops the diagnostic rather than blocking the scheduler —
// diagnostics are best-effort observability, not part of the commit path.
type Hook struct {
	out chan<- Diagnostic
}

// NewHook returns a logrus.Hook that forwards entries to ch.
func NewHook(ch chan<- Diagnostic) *Hook {
	return &Hook{out: ch}
}

func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *Hook) Fire(entry *logrus.Entry) error {
	fields := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		fields[k] = v
	}
	d := Diagnostic{Level: entry.Level.String(), Message: entry.Message, Fields: fields}
	select {
	case h.out <- d:
	default:
	}
	return nil
}
