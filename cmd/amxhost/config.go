package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents an amxhost.toml host configuration.
type Config struct {
	Script  Script  `toml:"script"`
	Server  Server  `toml:"server"`
	Profile Profile `toml:"profile"`

	// Dir is the directory containing the amxhost.toml file (set at load time).
	Dir string `toml:"-"`
}

// Script configures the script runtime.
type Script struct {
	// Source is the directory modules are loaded from, relative to Dir.
	Source string `toml:"source"`
	// Entry is the bootstrap module, relative to Source.
	Entry string `toml:"entry"`
}

// Server configures the tick loop.
type Server struct {
	TickRateMs      int `toml:"tick-rate-ms"`
	ExecutorWorkers int `toml:"executor-workers"`
}

// Profile configures tick tracing.
type Profile struct {
	// TraceOutput, when set, captures per-tick timings for the whole run
	// and writes them here at shutdown.
	TraceOutput string `toml:"trace-output"`
}

// LoadConfig parses an amxhost.toml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	// Defaults
	if c.Script.Source == "" {
		c.Script.Source = "javascript"
	}
	if c.Script.Entry == "" {
		c.Script.Entry = "main.js"
	}
	if c.Server.TickRateMs <= 0 {
		c.Server.TickRateMs = 10
	}
	if c.Server.ExecutorWorkers <= 0 {
		c.Server.ExecutorWorkers = 4
	}

	return &c, nil
}

// SourcePath returns the absolute path of the module source directory.
func (c *Config) SourcePath() string {
	return filepath.Join(c.Dir, c.Script.Source)
}
