// Package log is the engine's logging surface, a thin wrapper over
// logrus. Grounded on the call shape used by the reference engine driver
// (github.com/gopistolet/smtp's mta package, retrieved as
// _examples/other_examples/9244f406_gopistolet-smtp__mta-mta.go.go):
// log.WithFields(log.Fields{...}).Debug(...), log.Printf, log.Warnf,
// log.Errorln, log.Fatalf. The teacher's own go.mod already declares
// sirupsen/logrus as a dependency; this package is where it's actually
// used.
package log

import (
	"github.com/sirupsen/logrus"
)

// Fields is an alias for logrus.Fields so callers don't need to import
// logrus directly.
type Fields = logrus.Fields

var std = logrus.StandardLogger()

// SetLevel adjusts the standard logger's verbosity.
func SetLevel(level logrus.Level) {
	std.SetLevel(level)
}

// WithFields returns an Entry carrying structured fields, mirroring
// logrus.Entry's chained Debug/Info/Warn/Error/Fatal methods.
func WithFields(fields Fields) *logrus.Entry {
	return std.WithFields(fields)
}

func Printf(format string, args ...interface{})  { std.Printf(format, args...) }
func Debugf(format string, args ...interface{})  { std.Debugf(format, args...) }
func Infof(format string, args ...interface{})   { std.Infof(format, args...) }
func Warnf(format string, args ...interface{})   { std.Warnf(format, args...) }
func Errorf(format string, args ...interface{})  { std.Errorf(format, args...) }
func Errorln(args ...interface{})                { std.Errorln(args...) }
func Fatalf(format string, args ...interface{})  { std.Fatalf(format, args...) }
func Debug(args ...interface{})                  { std.Debug(args...) }
func Info(args ...interface{})                   { std.Info(args...) }
