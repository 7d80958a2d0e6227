package utils

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger. Format is "text" or "json".
func NewLogger(cfg LogConfig) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	log.SetLevel(lvl)

	switch cfg.Format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log.format: unknown format %q", cfg.Format)
	}
	return log, nil
}
