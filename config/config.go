// Package config provides the logsim driver's run configuration: the
// oscillation bound, logging setup, default cycle count and optional
// Redis broadcast target, loadable from a YAML file with sane defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options is the driver's run configuration. Zero value is not meaningful —
// use Default() or Load().
type Options struct {
	MaxIterations int    `yaml:"max_iterations"`
	DefaultCycles int    `yaml:"default_cycles"`
	LogLevel      string `yaml:"log_level"`
	LogJSON       bool   `yaml:"log_json"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisChannel  string `yaml:"redis_channel"`
}

// Default returns the built-in configuration used when no file is given.
func Default() Options {
	return Options{
		MaxIterations: 20,
		DefaultCycles: 10,
		LogLevel:      "info",
		LogJSON:       false,
		RedisChannel:  "logsim:traces",
	}
}

// WithMaxIterations overrides the oscillation bound.
func (o Options) WithMaxIterations(n int) Options {
	o.MaxIterations = n
	return o
}

// WithDefaultCycles overrides the number of cycles run when --cycles is
// not given.
func (o Options) WithDefaultCycles(n int) Options {
	o.DefaultCycles = n
	return o
}

// WithLogLevel overrides the logrus level name.
func (o Options) WithLogLevel(level string) Options {
	o.LogLevel = level
	return o
}

// WithRedisAddr overrides the optional broadcast target. An empty address
// means broadcasting is disabled.
func (o Options) WithRedisAddr(addr string) Options {
	o.RedisAddr = addr
	return o
}

// Load reads path as YAML over the defaults: any field left out of the file
// keeps its default value. A missing file is not an error — it falls back
// to Default() unchanged.
func Load(path string) (Options, error) {
	opts := Default()
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, fmt.Errorf("config: reading %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	return opts, nil
}
