// Package config provides configuration management for assetforge using
// Viper for flexible loading from files, environment variables, and
// command-line flags.
//
// Configuration is read from .assetforge.yml with ASSETFORGE_ environment
// variable overrides. It covers watched paths, per-type join rules and
// ordering, module wrapping, source-map mode, optimizer toggles, and worker
// parallelism. Once loaded and validated the configuration is treated as
// read-only: concurrent bundle targets and worker processes share it
// without synchronization.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Source-map output modes. Modes are mutually exclusive and build-wide: a
// single build cannot mix modes across targets.
const (
	SourceMapsOff         = "off"
	SourceMapsOn          = "on"
	SourceMapsInline      = "inline"
	SourceMapsAbsoluteURL = "absoluteUrl"
)

type Config struct {
	Paths      PathsConfig   `yaml:"paths" mapstructure:"paths"`
	Files      FilesConfig   `yaml:"files" mapstructure:"files"`
	Modules    ModulesConfig `yaml:"modules" mapstructure:"modules"`
	NPM        NPMConfig     `yaml:"npm" mapstructure:"npm"`
	SourceMaps string        `yaml:"source_maps" mapstructure:"source_maps"`
	Optimize   bool          `yaml:"optimize" mapstructure:"optimize"`
	Workers    WorkersConfig `yaml:"workers" mapstructure:"workers"`
	LogLevel   string        `yaml:"log_level" mapstructure:"log_level"`
}

// PathsConfig describes where input files come from and where bundles go.
type PathsConfig struct {
	Watched []string `yaml:"watched" mapstructure:"watched"`
	Public  string   `yaml:"public" mapstructure:"public"`
	Ignore  []string `yaml:"ignore" mapstructure:"ignore"`
}

// FilesConfig holds the per-type join and ordering rules.
type FilesConfig struct {
	Scripts     TypeConfig `yaml:"scripts" mapstructure:"scripts"`
	Stylesheets TypeConfig `yaml:"stylesheets" mapstructure:"stylesheets"`
}

// TypeConfig is the declarative join configuration for one file type.
//
// JoinTo is either a single output path (every file of the type joins it)
// or a mapping of output path to matcher; a matcher is a glob string or an
// array of literal paths. Entries maps an entry-point input path to its own
// join configuration, seeding an independent bundle.
type TypeConfig struct {
	JoinTo  any            `yaml:"join_to" mapstructure:"join_to"`
	Entries map[string]any `yaml:"entries" mapstructure:"entries"`
	Order   OrderConfig    `yaml:"order" mapstructure:"order"`
}

// IsZero reports whether no join configuration was declared for the type.
func (tc TypeConfig) IsZero() bool {
	return tc.JoinTo == nil && len(tc.Entries) == 0
}

// OrderConfig is the declarative ordering section for one file type.
type OrderConfig struct {
	Before []string `yaml:"before" mapstructure:"before"`
	After  []string `yaml:"after" mapstructure:"after"`
	Vendor []string `yaml:"vendor" mapstructure:"vendor"` // glob patterns classifying third-party files
}

// ModulesConfig controls script module wrapping.
type ModulesConfig struct {
	Wrapper     string   `yaml:"wrapper" mapstructure:"wrapper"` // "commonjs" or "none"
	Definition  bool     `yaml:"definition" mapstructure:"definition"`
	AutoRequire []string `yaml:"auto_require" mapstructure:"auto_require"`
}

// NPMConfig controls package-manager integration for vendor ordering and
// module detection.
type NPMConfig struct {
	Enabled      bool     `yaml:"enabled" mapstructure:"enabled"`
	Directory    string   `yaml:"directory" mapstructure:"directory"`
	PackageOrder []string `yaml:"package_order" mapstructure:"package_order"`
}

// WorkersConfig controls out-of-process job execution.
type WorkersConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Count   int  `yaml:"count" mapstructure:"count"`
}

// Load builds a Config from viper's current state, applying defaults for
// anything not explicitly set.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if len(config.Paths.Watched) == 0 {
		config.Paths.Watched = []string{"app", "vendor"}
	}
	if config.Paths.Public == "" {
		config.Paths.Public = "public"
	}
	if len(config.Paths.Ignore) == 0 {
		config.Paths.Ignore = []string{"node_modules", ".git"}
	}
	if config.SourceMaps == "" {
		config.SourceMaps = SourceMapsOn
	}
	if config.Modules.Wrapper == "" {
		config.Modules.Wrapper = "commonjs"
	}
	if config.NPM.Directory == "" {
		config.NPM.Directory = "node_modules"
	}
	if config.Workers.Count == 0 {
		config.Workers.Count = 4
	}
	if config.LogLevel == "" {
		config.LogLevel = viper.GetString("log-level")
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks settings that cannot be degraded to warnings.
func (c *Config) Validate() error {
	switch c.SourceMaps {
	case SourceMapsOff, SourceMapsOn, SourceMapsInline, SourceMapsAbsoluteURL:
	default:
		return fmt.Errorf("invalid source_maps mode %q (want off, on, inline, or absoluteUrl)", c.SourceMaps)
	}

	switch c.Modules.Wrapper {
	case "commonjs", "none":
	default:
		return fmt.Errorf("invalid modules.wrapper %q (want commonjs or none)", c.Modules.Wrapper)
	}

	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be at least 1, got %d", c.Workers.Count)
	}

	return nil
}
