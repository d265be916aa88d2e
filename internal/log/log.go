// Package log implements structured logging for the channel runtime on top
// of logrus, with lumberjack-rotated file output and a logrus-prefixed
// console formatter in development mode.
package log

import "sync"

// Logger is the leveled logging interface every component depends on
// instead of a package-level global. WithField/WithFields derive a logger
// that attaches structured fields (e.g. a channel id) to every line it
// emits.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

var (
	once    sync.Once
	logger  Logger
	initted bool
)

// Init configures the process-wide default logger. Only the first call
// takes effect; later calls are no-ops so packages that resolve a logger
// via Get() before the daemon has parsed its config still get a usable
// default instead of a nil pointer.
func Init(cfg Config) {
	once.Do(func() {
		logger = newLogrusLogger(cfg)
		initted = true
	})
}

// Get returns the process-wide default logger, applying stderr/text
// defaults if Init was never called — the common case in unit tests.
func Get() Logger {
	if !initted {
		Init(Config{Level: "info", Format: "text"})
	}
	return logger
}
