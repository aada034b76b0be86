// Package logger provides the structured logging constructor used across
// every bitkv subsystem. The Engine receives a *zap.SugaredLogger as an
// argument to engine.Open rather than reaching for a package-level global,
// keeping logging configuration a caller-controlled concern.
package logger

import (
	"go.uber.org/zap"
)

// New builds a production-configured, named *zap.SugaredLogger. The service
// name is attached to every log line so that multiple bitkv instances (or
// bitkv plus the hosting application) can be told apart in shared output.
func New(service string) *zap.SugaredLogger {
	base, err := zap.NewProduction()
	if err != nil {
		// zap.NewProduction only fails on misconfigured sinks, which cannot
		// happen with the default config; fall back to a no-op logger
		// rather than panic in a library constructor.
		base = zap.NewNop()
	}

	return base.Named(service).Sugar()
}

// NewDevelopment builds a development-configured logger: human-readable,
// colorized, stack traces on Warn+. Intended for the cmd/bitkv CLI and for
// tests that want readable failure output.
func NewDevelopment(service string) *zap.SugaredLogger {
	base, err := zap.NewDevelopment()
	if err != nil {
		base = zap.NewNop()
	}

	return base.Named(service).Sugar()
}

// Nop returns a logger that discards everything, for tests that don't care
// about log output but still need to satisfy a *zap.SugaredLogger parameter.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
