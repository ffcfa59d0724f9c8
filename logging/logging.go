// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/wricardo/mindmeld/config"
)

// New returns a logger writing to out, and additionally to cfg.File when set.
// The returned close function releases the log file.
func New(cfg config.LogConfig, out io.Writer) (*logrus.Logger, func() error, error) {
	logger := logrus.New()

	level, levelErr := logrus.ParseLevel(cfg.Level)
	if levelErr != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			DisableQuote:  true,
		})
	}

	closeFn := func() error { return nil }
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(out, file)
		closeFn = file.Close
	}
	logger.SetOutput(out)

	if levelErr != nil {
		logger.WithField("level", cfg.Level).Warn("Unknown log level, using info")
	}
	return logger, closeFn, nil
}
