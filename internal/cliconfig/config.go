package cliconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/bulkship/pkg/ship"
)

// Config holds CLI configuration for bulkship.
type Config struct {
	Endpoint  string
	AuthToken string

	TargetBatchCount int
	MaxPayloadBytes  int
	MaxRetries       int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	BackoffJitter    float64
	RequestTimeout   time.Duration
	FailureLogDir    string
	WorkerCount      int
	CompressionLevel int
	IdempotencyKeys  bool
	UserAgent        string

	// Source overrides the source name derived from the input file name.
	Source string

	InboxDir      string
	DoneDir       string
	WatchDebounce time.Duration

	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	sc := ship.DefaultConfig()
	return Config{
		TargetBatchCount: sc.TargetBatchCount,
		MaxPayloadBytes:  sc.MaxPayloadBytes,
		MaxRetries:       sc.MaxRetries,
		BackoffBase:      sc.BackoffBase,
		BackoffMax:       sc.BackoffMax,
		BackoffJitter:    sc.BackoffJitter,
		RequestTimeout:   sc.RequestTimeout,
		FailureLogDir:    defaultFailureLogDir(),
		WorkerCount:      sc.WorkerCount,
		CompressionLevel: sc.CompressionLevel,
		IdempotencyKeys:  sc.IdempotencyKeys,
		UserAgent:        sc.UserAgent,
		WatchDebounce:    time.Second,
		LogLevel:         "info",
		LogFormat:        "console",
	}
}

func defaultFailureLogDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".bulkship", "failed")
	}
	return "failed"
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	if c.InboxDir != "" && c.DoneDir == "" {
		c.DoneDir = filepath.Join(c.InboxDir, "done")
	}

	var errs []error
	if err := c.ShipConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q (want console or json)", c.LogFormat))
	}
	if c.WatchDebounce < 0 {
		errs = append(errs, fmt.Errorf("watch debounce must be >= 0, got %s", c.WatchDebounce))
	}
	return errors.Join(errs...)
}

// ShipConfig converts c to the library configuration.
func (c Config) ShipConfig() ship.Config {
	return ship.Config{
		Endpoint:         c.Endpoint,
		AuthToken:        c.AuthToken,
		TargetBatchCount: c.TargetBatchCount,
		MaxPayloadBytes:  c.MaxPayloadBytes,
		MaxRetries:       c.MaxRetries,
		BackoffBase:      c.BackoffBase,
		BackoffMax:       c.BackoffMax,
		BackoffJitter:    c.BackoffJitter,
		RequestTimeout:   c.RequestTimeout,
		FailureLogDir:    c.FailureLogDir,
		WorkerCount:      c.WorkerCount,
		CompressionLevel: c.CompressionLevel,
		IdempotencyKeys:  c.IdempotencyKeys,
		UserAgent:        c.UserAgent,
	}
}

// Redacted returns a copy of c that is safe to log.
func (c Config) Redacted() Config {
	if c.AuthToken != "" {
		c.AuthToken = "*****"
	}
	return c
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntPtr sets an int value from a pointer if not nil and flag not changed.
func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setFloatPtr sets a float64 value from a pointer if not nil and flag not changed.
func (s *configSetter) setFloatPtr(flag string, value *float64, dst *float64) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
