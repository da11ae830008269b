package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (BULKSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("endpoint", os.Getenv("BULKSHIP_ENDPOINT"), &cfg.Endpoint)
	s.setString("auth-token", os.Getenv("BULKSHIP_AUTH_TOKEN"), &cfg.AuthToken)
	s.setString("failure-dir", os.Getenv("BULKSHIP_FAILURE_LOG_DIR"), &cfg.FailureLogDir)
	s.setString("user-agent", os.Getenv("BULKSHIP_USER_AGENT"), &cfg.UserAgent)
	s.setString("source", os.Getenv("BULKSHIP_SOURCE"), &cfg.Source)
	s.setString("inbox", os.Getenv("BULKSHIP_INBOX_DIR"), &cfg.InboxDir)
	s.setString("done-dir", os.Getenv("BULKSHIP_DONE_DIR"), &cfg.DoneDir)
	s.setString("log-level", os.Getenv("BULKSHIP_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("BULKSHIP_LOG_FORMAT"), &cfg.LogFormat)
	s.setString("metrics-addr", os.Getenv("BULKSHIP_METRICS_ADDR"), &cfg.MetricsAddr)

	if err := s.setDuration("backoff-base", os.Getenv("BULKSHIP_BACKOFF_BASE"), &cfg.BackoffBase); err != nil {
		return err
	}
	if err := s.setDuration("backoff-max", os.Getenv("BULKSHIP_BACKOFF_MAX"), &cfg.BackoffMax); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("BULKSHIP_REQUEST_TIMEOUT"), &cfg.RequestTimeout); err != nil {
		return err
	}
	if err := s.setDuration("debounce", os.Getenv("BULKSHIP_WATCH_DEBOUNCE"), &cfg.WatchDebounce); err != nil {
		return err
	}

	if err := s.setIntFromString("batch-count", os.Getenv("BULKSHIP_TARGET_BATCH_COUNT"), &cfg.TargetBatchCount); err != nil {
		return err
	}
	if err := s.setIntFromString("max-payload-bytes", os.Getenv("BULKSHIP_MAX_PAYLOAD_BYTES"), &cfg.MaxPayloadBytes); err != nil {
		return err
	}
	if err := s.setIntFromString("max-retries", os.Getenv("BULKSHIP_MAX_RETRIES"), &cfg.MaxRetries); err != nil {
		return err
	}
	if err := s.setIntFromString("workers", os.Getenv("BULKSHIP_WORKER_COUNT"), &cfg.WorkerCount); err != nil {
		return err
	}
	if err := s.setIntFromString("compression-level", os.Getenv("BULKSHIP_COMPRESSION_LEVEL"), &cfg.CompressionLevel); err != nil {
		return err
	}
	if err := s.setFloatFromString("backoff-jitter", os.Getenv("BULKSHIP_BACKOFF_JITTER"), &cfg.BackoffJitter); err != nil {
		return err
	}

	s.setBoolFromString("idempotency-keys", os.Getenv("BULKSHIP_IDEMPOTENCY_KEYS"), &cfg.IdempotencyKeys)

	return nil
}
