package stochastic

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/stochastic/internal/gpu"
)

// nopHandler discards all records. Enabled reports false so disabled
// logging costs no formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger for the pipeline and its GPU backend.
// The package is silent until SetLogger is called. Passing nil restores
// the silent default.
//
// SetLogger is safe for concurrent use.
//
// Levels:
//   - [slog.LevelDebug]: buffer allocation, pipeline creation, skipped cameras
//   - [slog.LevelInfo]: pipeline construction and teardown, settings reloads
//   - [slog.LevelWarn]: dropped camera frames, settings reload failures
//
// Example:
//
//	stochastic.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
	gpu.SetLogger(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
