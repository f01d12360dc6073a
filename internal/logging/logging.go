// Package logging hands out scoped, leveled loggers.  The level is read from
// the PION_LOG_* environment variables, e.g. PION_LOG_DEBUG=camera,acquire.
package logging

import (
	"github.com/pion/logging"
)

var loggerFactory = logging.NewDefaultLoggerFactory()

// NewLogger returns a logger that prefixes its lines with scope
func NewLogger(scope string) logging.LeveledLogger {
	return loggerFactory.NewLogger(scope)
}
