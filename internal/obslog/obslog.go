// Package obslog wires the module's single shared *logrus.Logger,
// level-controlled by the ARIA_LOG environment variable (reference
// default: info). Every package that logs — pipeline, transport,
// cmd/* — takes this logger rather than constructing its own, so a
// single env var governs verbosity process-wide.
package obslog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger configured from ARIA_LOG (e.g. "debug", "warn";
// an unrecognized or empty value falls back to info).
func New() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(os.Getenv("ARIA_LOG"))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	return l
}
