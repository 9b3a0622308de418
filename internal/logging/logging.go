// Package logging centralizes the zap.Logger conventions shared by every
// storage-core component: components never log on their hot path, only on
// slow events, background-worker failures, and integrity findings.
package logging

import "go.uber.org/zap"

// NopLogger returns a logger that discards everything, the default for
// components constructed without an explicit WithLogger option.
func NopLogger() *zap.Logger { return zap.NewNop() }

// Named scopes l under component, falling back to a nop logger when l is
// nil so callers never need a nil check before logging.
func Named(l *zap.Logger, component string) *zap.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return l.Named(component)
}
