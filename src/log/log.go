// Package log owns the process-wide structured logger, a logr facade over
// zap. Commands switch it into development mode before any other wiring runs.
package log

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

var (
	zapLog *zap.Logger
	logger logr.Logger
)

func init() {
	use(zap.Must(zap.NewProduction()))
}

// SetDevelopment switches to a console encoder with debug output enabled.
func SetDevelopment() {
	use(zap.Must(zap.NewDevelopment()))
}

func use(l *zap.Logger) {
	zapLog = l
	logger = zapr.NewLogger(l)
}

// Sync flushes buffered entries. Commands call it on shutdown.
func Sync() {
	_ = zapLog.Sync()
}

// Info logs a message with the given key/value pairs as context.
func Info(msg string, keysAndValues ...interface{}) {
	logger.Info(msg, keysAndValues...)
}

// Debug logs at verbosity 1; visible only in development mode.
func Debug(msg string, keysAndValues ...interface{}) {
	logger.V(1).Info(msg, keysAndValues...)
}

// Error logs an error with the given key/value pairs as context.
func Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error(err, msg, keysAndValues...)
}
