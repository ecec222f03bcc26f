// Package obslog wraps zerolog in the small Logger interface the rest of
// the service programs against, the way internal/rag/service in the
// teacher repo programs against its own Logger interface rather than a
// concrete logging library. The core never logs decoded OCR text (§7).
package obslog

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the narrow logging surface consumed by every component.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	With(fields map[string]any) Logger
}

type zlogger struct {
	l zerolog.Logger
}

// New builds a process-wide JSON logger writing to w at the given level
// ("debug", "info", "warn", "error"; defaults to "info" on a bad value).
func New(w io.Writer, level string) Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	base := zerolog.New(w).With().Timestamp().Logger().Level(lvl)
	return &zlogger{l: base}
}

func (z *zlogger) event(level zerolog.Level, msg string, fields map[string]any) {
	ev := z.l.WithLevel(level)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (z *zlogger) Debug(msg string, fields map[string]any) { z.event(zerolog.DebugLevel, msg, fields) }
func (z *zlogger) Info(msg string, fields map[string]any)  { z.event(zerolog.InfoLevel, msg, fields) }
func (z *zlogger) Error(msg string, fields map[string]any) { z.event(zerolog.ErrorLevel, msg, fields) }

func (z *zlogger) With(fields map[string]any) Logger {
	ctx := z.l.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &zlogger{l: ctx.Logger()}
}

// Noop discards everything; used in tests that don't assert on logs.
type Noop struct{}

func (Noop) Debug(string, map[string]any) {}
func (Noop) Info(string, map[string]any)  {}
func (Noop) Error(string, map[string]any) {}
func (n Noop) With(map[string]any) Logger { return n }
