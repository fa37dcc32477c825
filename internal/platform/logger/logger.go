// Package logger provides a configured zerolog logger.
package logger

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New returns a zerolog.Logger tagged with the service name. The global
// logger is replaced with it so middleware logging through zerolog/log
// carries the same fields.
func New(serviceName string) zerolog.Logger {
	l := zerolog.New(os.Stdout).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
	log.Logger = l
	return l
}
