// Package tlog carries the ambient logger for the timer queue.
//
// The queue is a library, not a service: it must stay silent unless a
// host explicitly wires a logger in, so the default is zap.NewNop().
// The DBG/INFO/WARN/ERR/BUG/PANIC vocabulary is a gated-diagnostics
// convention built on top of zap's leveled logger: DBGon lets a caller
// skip building an expensive field when debug logging is disabled.
package tlog

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// SetLogger installs l as the package-wide logger. Passing nil restores
// the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

// L returns the current logger.
func L() *zap.Logger {
	return logger.Load()
}

// DBGon reports whether debug-level logging is currently enabled, so
// that callers can skip building expensive fields when it is not.
func DBGon() bool {
	return L().Core().Enabled(zap.DebugLevel)
}

// DBG logs a debug diagnostic.
func DBG(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// INFO logs an informational event.
func INFO(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// WARN logs a recoverable anomaly, e.g. a disposal surface racing with
// itself.
func WARN(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// ERR logs an operation failure that does not corrupt queue state.
func ERR(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// BUG logs an invariant violation that was caught and contained; the
// queue keeps running but the condition should never occur and is
// worth alerting on.
func BUG(msg string, fields ...zap.Field) {
	L().Error("BUG: "+msg, fields...)
}

// PANIC logs an invariant violation that leaves internal state
// unrecoverable (corrupted linkage, negative in-flight count) and then
// panics. These are programming errors, treated as fatal assertions.
func PANIC(msg string, fields ...zap.Field) {
	L().Error("PANIC: "+msg, fields...)
	panic("mtimer: " + msg)
}
