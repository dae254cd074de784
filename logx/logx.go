// Package logx carries the SDK's logging interface. Every subsystem logs
// through Logger rather than fmt.Println, exactly as matrix-org/lb's
// Observations and CoAPHTTP types accept an optional Logger so library
// consumers who don't want a logrus dependency can still get diagnostics.
package logx

import (
	"github.com/sirupsen/logrus"
)

// Logger is satisfied by anything that can print a formatted debug line.
// It is intentionally minimal: the SDK never requires leveled logging, only
// enough to identify which path/CoAP class/detail produced an error. Logs
// never call back into the engine, to avoid reentrancy (spec.md §7).
type Logger interface {
	Printf(format string, v ...interface{})
}

// NopLogger discards everything. Used as the zero-value default so callers
// never need a nil check.
type NopLogger struct{}

func (NopLogger) Printf(string, ...interface{}) {}

// Logrus adapts a *logrus.Logger (or the package-level logger) to Logger.
type Logrus struct {
	*logrus.Logger
}

func (l Logrus) Printf(format string, v ...interface{}) {
	if l.Logger == nil {
		logrus.Infof(format, v...)
		return
	}
	l.Logger.Infof(format, v...)
}

// Default returns a Logrus-backed logger using logrus's standard logger,
// matching the bare logrus.Infof/WithError calls used throughout
// matrix-org/lb's mobile package.
func Default() Logger {
	return Logrus{}
}

// WithError mirrors logrus.WithError(err).Error(format, v...) for callers
// that already have a Logger and an error to report, without forcing every
// call site to special-case the nop logger.
func WithError(l Logger, err error, format string, v ...interface{}) {
	if l == nil {
		return
	}
	msg := append([]interface{}{err}, v...)
	l.Printf("%s: "+format, msg...)
}
