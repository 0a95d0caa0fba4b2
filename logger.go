package vkez

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger sets the logger used by vkez and its backends. By default
// nothing is logged. Pass nil to restore silence.
//
// Levels:
//   - [slog.LevelDebug]: cache misses, object creation, barrier counts
//   - [slog.LevelInfo]: device and swapchain lifecycle, pipeline cache load/save
//   - [slog.LevelWarn]: discarded pipeline caches, hazards inside render passes
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// ParseLevel converts a level name as used in Config.Log.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, errors.Wrapf(ErrValidation, "unknown log level %q", s)
	}
	return l, nil
}
