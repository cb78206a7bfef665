package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fixlen/internal/logger"
	"github.com/samcharles93/fixlen/internal/version"
)

func main() {
	app := &cli.Command{
		Name:    "fixlen",
		Usage:   "Fixed-length MCMC sentence sampler",
		Version: version.String(),
		Flags:   globalFlags(),
		Before:  setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			sampleCmd(),
			scoreCmd(),
			translateCmd(),
			serveCmd(),
			initModelCmd(),
			makeVocabCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config file and puts a stderr logger on the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return ctx, cli.Exit(err.Error(), 1)
	}
	fileConfig = cfg
	setString(cmd, "log-level", &logLevel, cfg.LogLevel)
	setString(cmd, "log-format", &logFormat, cfg.LogFormat)

	log, err := newLogger(logLevel, logFormat, debug)
	if err != nil {
		return ctx, cli.Exit(err.Error(), 1)
	}
	return logger.WithContext(ctx, log), nil
}

func newLogger(level, format string, debug bool) (logger.Logger, error) {
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if debug {
		lvl = slog.LevelDebug
	}
	f, err := logger.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return logger.NewWithFormat(os.Stderr, f, lvl), nil
}
