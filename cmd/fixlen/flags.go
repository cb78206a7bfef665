package main

import "github.com/urfave/cli/v3"

var (
	srcVocabPath string
	trgVocabPath string
	fldDir       string
	fldEpoch     string
	encdecDir    string
	encdecEpoch  string
	configFile   string
	logLevel     string
	logFormat    string
	debug        bool
)

func vocabFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "src-vocab",
			Usage:       "source vocabulary file",
			Destination: &srcVocabPath,
		},
		&cli.StringFlag{
			Name:        "trg-vocab",
			Usage:       "target vocabulary file",
			Destination: &trgVocabPath,
		},
	}
}

func scorerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "fld-dir",
			Usage:       "directory holding the fixed-length scorer",
			Destination: &fldDir,
		},
		&cli.StringFlag{
			Name:        "fld-epoch",
			Usage:       "scorer epoch or tag",
			Value:       "best",
			Destination: &fldEpoch,
		},
	}
}

func proposalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "encdec-dir",
			Usage:       "directory holding the proposal encoder/decoder",
			Destination: &encdecDir,
		},
		&cli.StringFlag{
			Name:        "encdec-epoch",
			Usage:       "proposal epoch or tag",
			Value:       "best",
			Destination: &encdecEpoch,
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "config file (default $XDG_CONFIG_HOME/fixlen/config.yaml)",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
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

func requireFlag(value, name string) error {
	if value == "" {
		return cli.Exit("missing required flag --"+name, 1)
	}
	return nil
}
