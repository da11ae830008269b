package ship

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/bft-labs/bulkship/pkg/sender"
)

// Config configures a Shipper.
type Config struct {
	// Endpoint is the absolute http(s) URL batches are POSTed to.
	Endpoint string
	// AuthToken is sent as a bearer token.
	AuthToken string

	// TargetBatchCount is the number of records per planned batch.
	TargetBatchCount int
	// MaxPayloadBytes is the largest compressed body the receiver accepts.
	MaxPayloadBytes int

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	BackoffJitter float64

	// RequestTimeout bounds each attempt.
	RequestTimeout time.Duration

	// FailureLogDir receives one JSON document per undelivered batch.
	FailureLogDir string

	WorkerCount int

	// CompressionLevel is a gzip level from -1 (default) to 9.
	CompressionLevel int

	// IdempotencyKeys sends an Idempotency-Key header derived from the batch ID.
	IdempotencyKeys bool
	UserAgent       string
}

// DefaultConfig returns a Config with default values. Endpoint, AuthToken and
// FailureLogDir must still be set.
func DefaultConfig() Config {
	return Config{
		TargetBatchCount: 1000,
		MaxPayloadBytes:  5 << 20, // 5MB
		MaxRetries:       5,
		BackoffBase:      500 * time.Millisecond,
		BackoffMax:       30 * time.Second,
		BackoffJitter:    0.2,
		RequestTimeout:   30 * time.Second,
		WorkerCount:      4,
		CompressionLevel: gzip.DefaultCompression,
		IdempotencyKeys:  true,
		UserAgent:        "bulkship",
	}
}

// Validate reports every problem with c. The returned error wraps
// ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error

	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	} else if u, err := url.Parse(c.Endpoint); err != nil {
		errs = append(errs, fmt.Errorf("endpoint: %w", err))
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("endpoint %q must be an absolute http or https URL", c.Endpoint))
	}
	if c.AuthToken == "" {
		errs = append(errs, errors.New("auth token is required"))
	}
	if c.TargetBatchCount < 1 {
		errs = append(errs, fmt.Errorf("target batch count must be >= 1, got %d", c.TargetBatchCount))
	}
	if c.MaxPayloadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max payload bytes must be positive, got %d", c.MaxPayloadBytes))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries))
	}
	if c.BackoffBase < 0 {
		errs = append(errs, fmt.Errorf("backoff base must be >= 0, got %s", c.BackoffBase))
	}
	if c.BackoffMax < 0 {
		errs = append(errs, fmt.Errorf("backoff max must be >= 0, got %s", c.BackoffMax))
	}
	if c.BackoffJitter < 0 || c.BackoffJitter >= 1 {
		errs = append(errs, fmt.Errorf("backoff jitter must be in [0, 1), got %g", c.BackoffJitter))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.FailureLogDir == "" {
		errs = append(errs, errors.New("failure log dir is required"))
	}
	if c.WorkerCount < 1 {
		errs = append(errs, fmt.Errorf("worker count must be >= 1, got %d", c.WorkerCount))
	}
	if c.CompressionLevel < gzip.DefaultCompression || c.CompressionLevel > gzip.BestCompression {
		errs = append(errs, fmt.Errorf("compression level must be in [-1, 9], got %d", c.CompressionLevel))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func (c Config) backoff() sender.Backoff {
	return sender.Backoff{Base: c.BackoffBase, Max: c.BackoffMax, Jitter: c.BackoffJitter}
}

func (c Config) senderConfig(b sender.Backoff) sender.Config {
	return sender.Config{
		Endpoint:        c.Endpoint,
		AuthToken:       c.AuthToken,
		RequestTimeout:  c.RequestTimeout,
		MaxRetries:      c.MaxRetries,
		Backoff:         b,
		IdempotencyKeys: c.IdempotencyKeys,
		UserAgent:       c.UserAgent,
	}
}
