package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the optional fixlen config file. Pointer fields distinguish
// "not set" from zero values.
type Config struct {
	SrcVocab    string `yaml:"src_vocab"`
	TrgVocab    string `yaml:"trg_vocab"`
	FLDDir      string `yaml:"fld_dir"`
	FLDEpoch    string `yaml:"fld_epoch"`
	EncDecDir   string `yaml:"encdec_dir"`
	EncDecEpoch string `yaml:"encdec_epoch"`

	Mixture     string   `yaml:"mixture"`
	Seed        *int64   `yaml:"seed"`
	GumbelScale *float64 `yaml:"gumbel_scale"`
	Anneal      *bool    `yaml:"anneal"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
	MaxSamples    *int   `yaml:"max_samples"`
}

// fileConfig is loaded by the root Before hook.
var fileConfig Config

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "fixlen", "config.yaml")
}

// LoadConfig reads path, or the default location when path is empty. A
// missing default file yields a zero Config; a missing explicit file is an
// error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
		if path == "" {
			return Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func setString(c *cli.Command, flag string, dst *string, v string) {
	if v != "" && !c.IsSet(flag) {
		*dst = v
	}
}

// applyModelConfig fills vocabulary and model paths not given on the
// command line.
func applyModelConfig(c *cli.Command, cfg Config) {
	setString(c, "src-vocab", &srcVocabPath, cfg.SrcVocab)
	setString(c, "trg-vocab", &trgVocabPath, cfg.TrgVocab)
	setString(c, "fld-dir", &fldDir, cfg.FLDDir)
	setString(c, "fld-epoch", &fldEpoch, cfg.FLDEpoch)
	setString(c, "encdec-dir", &encdecDir, cfg.EncDecDir)
	setString(c, "encdec-epoch", &encdecEpoch, cfg.EncDecEpoch)
}

// applyChainConfig fills sampler options not given on the command line.
func applyChainConfig(c *cli.Command, cfg Config, o *chainOptions) {
	applyModelConfig(c, cfg)
	setString(c, "mixture", &o.mixture, cfg.Mixture)
	if cfg.Seed != nil && !c.IsSet("seed") {
		o.seed = *cfg.Seed
	}
	if cfg.GumbelScale != nil && !c.IsSet("gumbel-scale") {
		o.gumbelScale = *cfg.GumbelScale
	}
	if cfg.Anneal != nil && !c.IsSet("no-anneal") {
		o.noAnneal = !*cfg.Anneal
	}
}

func applyServeConfig(c *cli.Command, cfg Config, o *chainOptions, addr *string, maxSamples *int) {
	applyChainConfig(c, cfg, o)
	setString(c, "addr", addr, cfg.ServerAddress)
	if cfg.MaxSamples != nil && !c.IsSet("max-samples") {
		*maxSamples = *cfg.MaxSamples
	}
}
