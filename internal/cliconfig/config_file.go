package cliconfig

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config but uses strings for durations to make TOML and
// YAML friendly. Numeric fields are pointers so an explicit zero is kept.
type FileConfig struct {
	Endpoint         string   `toml:"endpoint" yaml:"endpoint"`
	AuthToken        string   `toml:"auth_token" yaml:"auth_token"`
	TargetBatchCount *int     `toml:"target_batch_count" yaml:"target_batch_count"`
	MaxPayloadBytes  *int     `toml:"max_payload_bytes" yaml:"max_payload_bytes"`
	MaxRetries       *int     `toml:"max_retries" yaml:"max_retries"`
	BackoffBase      string   `toml:"backoff_base" yaml:"backoff_base"`
	BackoffMax       string   `toml:"backoff_max" yaml:"backoff_max"`
	BackoffJitter    *float64 `toml:"backoff_jitter" yaml:"backoff_jitter"`
	RequestTimeout   string   `toml:"request_timeout" yaml:"request_timeout"`
	FailureLogDir    string   `toml:"failure_log_dir" yaml:"failure_log_dir"`
	WorkerCount      *int     `toml:"worker_count" yaml:"worker_count"`
	CompressionLevel *int     `toml:"compression_level" yaml:"compression_level"`
	IdempotencyKeys  *bool    `toml:"idempotency_keys" yaml:"idempotency_keys"`
	UserAgent        string   `toml:"user_agent" yaml:"user_agent"`
	Source           string   `toml:"source" yaml:"source"`
	InboxDir         string   `toml:"inbox_dir" yaml:"inbox_dir"`
	DoneDir          string   `toml:"done_dir" yaml:"done_dir"`
	WatchDebounce    string   `toml:"watch_debounce" yaml:"watch_debounce"`
	LogLevel         string   `toml:"log_level" yaml:"log_level"`
	LogFormat        string   `toml:"log_format" yaml:"log_format"`
	MetricsAddr      string   `toml:"metrics_addr" yaml:"metrics_addr"`
}

// LoadFileConfig reads and parses a config file from the given path. Files
// ending in .yaml or .yml are parsed as YAML, anything else as TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	default:
		err = toml.Unmarshal(b, &fc)
	}
	if err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.bulkship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".bulkship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("endpoint", fc.Endpoint, &cfg.Endpoint)
	s.setString("auth-token", fc.AuthToken, &cfg.AuthToken)
	s.setString("failure-dir", fc.FailureLogDir, &cfg.FailureLogDir)
	s.setString("user-agent", fc.UserAgent, &cfg.UserAgent)
	s.setString("source", fc.Source, &cfg.Source)
	s.setString("inbox", fc.InboxDir, &cfg.InboxDir)
	s.setString("done-dir", fc.DoneDir, &cfg.DoneDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)

	if err := s.setDuration("backoff-base", fc.BackoffBase, &cfg.BackoffBase); err != nil {
		return err
	}
	if err := s.setDuration("backoff-max", fc.BackoffMax, &cfg.BackoffMax); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.RequestTimeout, &cfg.RequestTimeout); err != nil {
		return err
	}
	if err := s.setDuration("debounce", fc.WatchDebounce, &cfg.WatchDebounce); err != nil {
		return err
	}

	s.setIntPtr("batch-count", fc.TargetBatchCount, &cfg.TargetBatchCount)
	s.setIntPtr("max-payload-bytes", fc.MaxPayloadBytes, &cfg.MaxPayloadBytes)
	s.setIntPtr("workers", fc.WorkerCount, &cfg.WorkerCount)
	s.setIntPtr("max-retries", fc.MaxRetries, &cfg.MaxRetries)
	s.setIntPtr("compression-level", fc.CompressionLevel, &cfg.CompressionLevel)
	s.setFloatPtr("backoff-jitter", fc.BackoffJitter, &cfg.BackoffJitter)

	s.setBool("idempotency-keys", fc.IdempotencyKeys, &cfg.IdempotencyKeys)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
