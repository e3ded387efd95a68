// Package config loads settings for the de-identification pipeline.
//
// Configuration comes from a single YAML file named by the
// SVS_SURGERY_CONFIG environment variable or the --config flag. Values
// missing from the file keep their defaults, and command-line flags
// override both.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "SVS_SURGERY_CONFIG"

// Config is the configuration of a de-identification run.
type Config struct {
	// Paths configures the incoming and final directories.
	Paths PathsConfig `yaml:"paths"`

	// Redaction selects the associated images to remove.
	Redaction RedactionConfig `yaml:"redaction"`

	// Metadata configures the rewrite of the filename recorded inside
	// the slide.
	Metadata MetadataConfig `yaml:"metadata"`

	// Workers is the number of files processed at once.
	// Default: 1
	Workers int `yaml:"workers"`

	// LogLevel is one of debug, info, warn, error.
	// Default: info
	LogLevel string `yaml:"log_level"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Incoming is where files are copied and modified before the move.
	Incoming string `yaml:"incoming"`

	// Final is where de-identified files end up.
	Final string `yaml:"final"`
}

// RedactionConfig selects which associated images are removed.
type RedactionConfig struct {
	// RemoveLabel removes the slide label page.
	// Default: true
	RemoveLabel bool `yaml:"remove_label"`

	// RemoveMacro removes the macro (overview) page as well.
	// Default: false
	RemoveMacro bool `yaml:"remove_macro"`
}

// MetadataConfig configures the filename rewrite.
type MetadataConfig struct {
	// Update enables the rewrite and renames the output to the
	// generated name. The rewrite happens in place, so the generated
	// name (60 bytes) must fit where the scanner's filename was; slides
	// with a shorter stored filename fail with ErrValueLengthMismatch
	// and should be run with update off.
	// Default: true
	Update bool `yaml:"update"`

	// Tag is the text tag holding the key/value segments.
	// Default: ImageDescription
	Tag string `yaml:"tag"`

	// Key is the segment whose value is replaced.
	// Default: Filename
	Key string `yaml:"key"`

	// Pages is the number of leading pages rewritten.
	// Default: 2
	Pages int `yaml:"pages"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Incoming: "./svs_image_files_to_deid",
			Final:    "./svs_image_files_deided",
		},
		Redaction: RedactionConfig{
			RemoveLabel: true,
			RemoveMacro: false,
		},
		Metadata: MetadataConfig{
			Update: true,
			Tag:    "ImageDescription",
			Key:    "Filename",
			Pages:  2,
		},
		Workers:  1,
		LogLevel: "info",
	}
}

// Load loads configuration from the file named by SVS_SURGERY_CONFIG,
// or returns the defaults when it is not set.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg.Paths.Incoming = expandVars(cfg.Paths.Incoming)
	cfg.Paths.Final = expandVars(cfg.Paths.Final)
	return cfg, nil
}

// Kinds returns the associated image kinds to remove, in order.
func (c *Config) Kinds() []string {
	var kinds []string
	if c.Redaction.RemoveLabel {
		kinds = append(kinds, "label")
	}
	if c.Redaction.RemoveMacro {
		kinds = append(kinds, "macro")
	}
	return kinds
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return l, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Incoming == "" {
		errs = append(errs, fmt.Errorf("paths.incoming is required"))
	}
	if c.Paths.Final == "" {
		errs = append(errs, fmt.Errorf("paths.final is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.Metadata.Update {
		if c.Metadata.Tag == "" {
			errs = append(errs, fmt.Errorf("metadata.tag is required when metadata.update is set"))
		}
		if c.Metadata.Key == "" || strings.ContainsAny(c.Metadata.Key, "|=") {
			errs = append(errs, fmt.Errorf("invalid metadata.key %q", c.Metadata.Key))
		}
		if c.Metadata.Pages < 1 {
			errs = append(errs, fmt.Errorf("metadata.pages must be at least 1, got %d", c.Metadata.Pages))
		}
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}
