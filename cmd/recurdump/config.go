package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the recurdump configuration file.
type Config struct {
	// TimeZone is the IANA zone blobs are interpreted in (e.g. "Europe/Berlin").
	TimeZone string `yaml:"time_zone"`

	// Input selects how blob arguments are encoded: "hex" (default),
	// "base64" or "raw" (the argument is a path to the binary blob).
	Input string `yaml:"input"`

	// MaxOccurrences caps the occurrences listed for a window.
	MaxOccurrences int `yaml:"max_occurrences"`

	// Database is the sqlite file used by import and stored lookups.
	Database string `yaml:"database"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		TimeZone:       "UTC",
		Input:          "hex",
		MaxOccurrences: 100,
		Database:       "recurdump.db",
		LogLevel:       "warn",
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled files still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.TimeZone == "" {
		c.TimeZone = d.TimeZone
	}
	switch strings.ToLower(c.Input) {
	case "hex", "base64", "raw":
		c.Input = strings.ToLower(c.Input)
	default:
		c.Input = d.Input
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = d.MaxOccurrences
	}
	if c.Database == "" {
		c.Database = d.Database
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		c.LogLevel = d.LogLevel
	}
}

// LoadConfig reads path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg = &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Normalize()
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(s))
	return l, err
}

// Logger builds the stderr logger for the configured level.
func (c *Config) Logger() *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
