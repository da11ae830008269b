package sender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/bulkship/pkg/batch"
	"github.com/bft-labs/bulkship/pkg/log"
	"github.com/bft-labs/bulkship/pkg/metrics"
)

// maxErrorBody caps how much of a non-2xx response body is kept for logs.
const maxErrorBody = 512

// idempotencyNamespace seeds the UUIDv5 idempotency keys derived from batch IDs.
var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/bft-labs/bulkship"))

// Config controls a Transmitter.
type Config struct {
	Endpoint       string
	AuthToken      string
	RequestTimeout time.Duration
	MaxRetries     int
	Backoff        Backoff

	// IdempotencyKeys adds an Idempotency-Key header derived from the batch ID.
	IdempotencyKeys bool
	UserAgent       string
}

// Transmitter sends encoded batches to a single endpoint.
// It holds no per-batch state and is safe for concurrent use.
type Transmitter struct {
	cfg      Config
	client   HTTPClient
	logger   log.Logger
	observer metrics.Observer
	hostname string
}

// New creates a Transmitter. A nil logger or observer disables that concern.
func New(cfg Config, client HTTPClient, logger log.Logger, observer metrics.Observer) *Transmitter {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	if observer == nil {
		observer = metrics.NoopObserver{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "bulkship"
	}
	return &Transmitter{
		cfg:      cfg,
		client:   client,
		logger:   logger.With(log.Component("sender")),
		observer: observer,
		hostname: hostname(),
	}
}

// IdempotencyKey returns the idempotency key sent for id.
func IdempotencyKey(id batch.ID) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(id.String())).String()
}

// Deliver sends body until it succeeds, fails permanently, exhausts the retry
// budget, or ctx is cancelled between attempts. A request already in flight
// when ctx is cancelled runs to completion or to its own timeout.
func (t *Transmitter) Deliver(ctx context.Context, id batch.ID, body []byte) Result {
	var res Result
	if err := ctx.Err(); err != nil {
		res.Status = StatusCancelled
		res.Err = fmt.Errorf("%w: %s: %w", ErrCancelled, id, err)
		return res
	}

	for attempt := 1; ; attempt++ {
		a := t.Send(ctx, id, body, attempt)
		res.Attempts = append(res.Attempts, a)

		switch a.Outcome {
		case OutcomeSuccess:
			res.Status = StatusDelivered
			return res
		case OutcomeTooLarge:
			res.Status = StatusTooLarge
			res.Err = fmt.Errorf("%w: %s (%d bytes)", ErrTooLarge, id, len(body))
			return res
		case OutcomePermanent:
			res.Status = StatusRejected
			res.Err = fmt.Errorf("%w: %s: %s", ErrRejected, id, a.describe())
			return res
		}

		if attempt > t.cfg.MaxRetries {
			res.Status = StatusExhausted
			res.Err = fmt.Errorf("%w: %s after %d attempts: %s", ErrExhausted, id, attempt, a.describe())
			return res
		}

		delay := t.cfg.Backoff.Delay(attempt)
		t.logger.Warn("attempt failed, retrying",
			log.Batch(id.String()),
			log.Int("attempt", attempt),
			log.Int("max_retries", t.cfg.MaxRetries),
			log.Int("status", a.Status),
			log.String("reason", a.Error),
			log.Duration("next_delay", delay),
		)
		if err := t.cfg.Backoff.Wait(ctx, attempt); err != nil {
			res.Status = StatusCancelled
			res.Err = fmt.Errorf("%w: %s: %w", ErrCancelled, id, err)
			return res
		}
	}
}

// Send performs one POST of body and classifies the result.
func (t *Transmitter) Send(ctx context.Context, id batch.ID, body []byte, attempt int) Attempt {
	start := time.Now()
	a := Attempt{Attempt: attempt, Timestamp: start.UTC(), Bytes: len(body)}

	reqCtx := context.WithoutCancel(ctx)
	if t.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, t.cfg.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		a.Outcome = OutcomePermanent
		a.Error = fmt.Sprintf("build request: %v", err)
		return t.finish(id, a, start)
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("User-Agent", t.cfg.UserAgent)
	req.Header.Set("X-Batch-Id", id.String())
	req.Header.Set("X-Agent-Hostname", t.hostname)
	req.Header.Set("X-Agent-OSArch", runtime.GOOS+"/"+runtime.GOARCH)
	if t.cfg.IdempotencyKeys {
		req.Header.Set("Idempotency-Key", IdempotencyKey(id))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		a.Outcome = OutcomeRetryable
		if errors.Is(err, context.DeadlineExceeded) {
			a.Error = fmt.Sprintf("timeout after %s", t.cfg.RequestTimeout)
		} else {
			a.Error = err.Error()
		}
		return t.finish(id, a, start)
	}
	defer resp.Body.Close()

	a.Status = resp.StatusCode
	a.Outcome = Classify(resp.StatusCode)
	if a.Outcome != OutcomeSuccess {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		a.Error = fmt.Sprintf("server returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)
	return t.finish(id, a, start)
}

func (t *Transmitter) finish(id batch.ID, a Attempt, start time.Time) Attempt {
	elapsed := time.Since(start)
	a.ElapsedMs = elapsed.Milliseconds()
	t.observer.RecordAttempt(string(a.Outcome), a.Status, a.Bytes, elapsed)
	t.logger.Debug("attempt finished",
		log.Batch(id.String()),
		log.Int("attempt", a.Attempt),
		log.String("outcome", string(a.Outcome)),
		log.Int("status", a.Status),
		log.Int("bytes", a.Bytes),
		log.Duration("elapsed", elapsed),
	)
	return a
}

func (a Attempt) describe() string {
	if a.Error != "" {
		return a.Error
	}
	return fmt.Sprintf("status %d", a.Status)
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}
