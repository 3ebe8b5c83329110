package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/atlasml/atlas/internal/hub"
	"github.com/atlasml/atlas/internal/logger"
)

var (
	cacheDir   string
	hubURL     string
	revision   string
	maxContext int64
	logLevel   string
	logFormat  string
	debug      bool
)

func commonHubFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "cache-dir",
			Usage:       "model cache directory",
			Destination: &cacheDir,
		},
		&cli.StringFlag{
			Name:        "hub-url",
			Usage:       "base URL of the model hub",
			Destination: &hubURL,
		},
		&cli.StringFlag{
			Name:        "revision",
			Aliases:     []string{"rev"},
			Usage:       "model revision (branch, tag, or commit)",
			Value:       hub.DefaultRevision,
			Destination: &revision,
		},
	}
}

func commonModelFlags() []cli.Flag {
	return append(commonHubFlags(),
		&cli.Int64Flag{
			Name:        "max-context",
			Aliases:     []string{"max-ctx", "ctx", "c"},
			Usage:       "max context length (0 = model maximum)",
			Destination: &maxContext,
		},
	)
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func newLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	if logFormat == "json" {
		return logger.JSON(os.Stderr, level)
	}
	return logger.Pretty(os.Stderr, level)
}
