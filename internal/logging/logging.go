package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// New builds a logger writing to stderr. verbose forces debug level.
func New(level, format string, verbose bool) (*log.Logger, error) {
	return newLogger(os.Stderr, level, format, verbose)
}

func newLogger(out io.Writer, level, format string, verbose bool) (*log.Logger, error) {
	logger := log.New()
	logger.SetOutput(out)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if verbose {
		lvl = log.DebugLevel
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case FormatText, "":
		logger.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	case FormatJSON:
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	return logger, nil
}
