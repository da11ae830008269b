package ship

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/bulkship/pkg/batch"
	"github.com/bft-labs/bulkship/pkg/codec"
	"github.com/bft-labs/bulkship/pkg/failure"
	"github.com/bft-labs/bulkship/pkg/log"
	"github.com/bft-labs/bulkship/pkg/metrics"
	"github.com/bft-labs/bulkship/pkg/sender"
)

// Shipper delivers record sets. It is safe for concurrent use; each Run has its
// own queue and worker pool.
type Shipper struct {
	cfg      Config
	codec    *codec.Codec
	tx       *sender.Transmitter
	store    FailureStore
	logger   log.Logger
	observer metrics.Observer
}

// New validates cfg and creates a Shipper. Errors wrap ErrInvalidConfig.
func New(cfg Config, opts ...Option) (*Shipper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}
	b := cfg.backoff()
	if o.backoff != nil {
		b = *o.backoff
	}
	if o.store == nil {
		sink, err := failure.NewFileSink(cfg.FailureLogDir)
		if err != nil {
			return nil, fmt.Errorf("%w: failure log dir: %w", ErrInvalidConfig, err)
		}
		o.store = sink
	}

	return &Shipper{
		cfg:      cfg,
		codec:    codec.New(cfg.CompressionLevel),
		tx:       sender.New(cfg.senderConfig(b), o.httpClient, o.logger, o.observer),
		store:    o.store,
		logger:   o.logger.With(log.Component("ship")),
		observer: o.observer,
	}, nil
}

// Config returns the configuration the Shipper was created with.
func (s *Shipper) Config() Config { return s.cfg }

// Run delivers records from source. Every record is either delivered or
// persisted to the failure store when Run returns without a fatal error.
//
// The returned error wraps ErrCancelled if ctx was cancelled before all
// batches were delivered, or failure.ErrPersistence if a failed batch could
// not be persisted. The report is valid in both cases.
func (s *Shipper) Run(ctx context.Context, source string, records []batch.Record) (RunReport, error) {
	batches, err := batch.Plan(source, records, s.cfg.TargetBatchCount)
	if err != nil {
		return RunReport{Status: StatusFailed}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	s.logger.Info("run started",
		log.String("source", source),
		log.Int("records", len(records)),
		log.Int("batches", len(batches)),
	)
	return s.run(ctx, batches)
}

// Replay resubmits every batch in the failure store through the same path as
// Run. A failure document is removed once all of its records were delivered or
// persisted under a different name. Documents with reason "serialization" are
// left in place since their records cannot be re-sent as they were.
func (s *Shipper) Replay(ctx context.Context) (RunReport, error) {
	paths, err := s.store.List()
	if err != nil {
		return RunReport{Status: StatusFailed}, fmt.Errorf("list failures: %w", err)
	}

	var batches []batch.Batch
	origins := make(map[string]string, len(paths))
	for _, path := range paths {
		rec, err := s.store.Load(path)
		if err != nil {
			s.logger.Error("skipping unreadable failure document", log.String("path", path), log.Err(err))
			continue
		}
		if !rec.Reason.Replayable() {
			s.logger.Info("skipping failure document",
				log.String("path", path),
				log.String("reason", string(rec.Reason)),
			)
			continue
		}
		b := rec.Batch()
		batches = append(batches, b)
		origins[filepath.Base(path)] = path
	}
	batch.Sort(batches)

	s.logger.Info("replay started", log.Int("documents", len(paths)), log.Int("batches", len(batches)))
	report, runErr := s.run(ctx, batches)
	if runErr != nil && !errors.Is(runErr, ErrCancelled) {
		return report, runErr
	}

	rewritten := make(map[string]bool, len(report.persisted))
	for _, name := range report.persisted {
		rewritten[name] = true
	}
	for name, path := range origins {
		if rewritten[name] {
			continue
		}
		if err := s.store.Remove(path); err != nil {
			s.logger.Warn("failed to remove replayed document", log.String("path", path), log.Err(err))
		}
	}
	return report, runErr
}

func (s *Shipper) run(ctx context.Context, batches []batch.Batch) (RunReport, error) {
	start := time.Now()
	q := newQueue(batches)

	reports := make([]RunReport, s.cfg.WorkerCount)
	var g errgroup.Group
	for i := range reports {
		w := &worker{s: s, q: q, report: &reports[i]}
		g.Go(func() error {
			return w.loop(ctx)
		})
	}
	err := g.Wait()

	var report RunReport
	for _, r := range reports {
		report.Add(r)
	}
	report.DurationMs = time.Since(start).Milliseconds()

	switch {
	case err != nil:
		report.Status = StatusFailed
	case report.Cancelled > 0:
		report.Status = StatusCancelled
		err = fmt.Errorf("%w: %d batches not delivered: %w", ErrCancelled, report.Cancelled, context.Cause(ctx))
	default:
		report.Status = StatusCompleted
	}

	fields := []log.Field{
		log.String("status", string(report.Status)),
		log.Int("batches", report.BatchesTotal),
		log.Int("succeeded", report.Succeeded),
		log.Int("splits", report.SplitEvents),
		log.Int("permanent_failures", report.PermanentFailures),
		log.Int("exhausted", report.ExhaustedRetries),
		log.Int("cancelled", report.Cancelled),
		log.Int64("duration_ms", report.DurationMs),
	}
	if err != nil {
		s.logger.Error("run finished", append(fields, log.Err(err))...)
	} else {
		s.logger.Info("run finished", fields...)
	}
	return report, err
}

// worker owns one batch at a time and keeps its own report.
type worker struct {
	s      *Shipper
	q      *queue
	report *RunReport
}

func (w *worker) loop(ctx context.Context) error {
	for {
		b, ok := w.q.pop()
		if !ok {
			return nil
		}
		err := w.process(ctx, b)
		w.q.done()
		if err != nil {
			if dropped := w.q.abort(); dropped > 0 {
				w.s.logger.Error("run aborted", log.Int("unprocessed_batches", dropped), log.Err(err))
			}
			return err
		}
	}
}

// process drives b to a terminal state or replaces it with its split children.
func (w *worker) process(ctx context.Context, b batch.Batch) error {
	if err := ctx.Err(); err != nil {
		return w.persist(b, failure.ReasonCancelled, nil, fmt.Errorf("%w: %w", ErrCancelled, err))
	}

	body, err := w.s.codec.Encode(b)
	if err != nil {
		if b.Size() > 1 {
			return w.split(b, "unencodable record")
		}
		return w.persist(b, failure.ReasonSerialization, nil, err)
	}
	if len(body) > w.s.cfg.MaxPayloadBytes {
		if b.Size() > 1 {
			return w.split(b, "over payload limit")
		}
		return w.persist(b, failure.ReasonOversized, nil,
			fmt.Errorf("%w: %d bytes > %d", ErrSizePolicy, len(body), w.s.cfg.MaxPayloadBytes))
	}

	res := w.s.tx.Deliver(ctx, b.ID, body)
	switch res.Status {
	case sender.StatusDelivered:
		w.report.delivered(b.Size())
		w.s.observer.RecordBatch("delivered", b.Size())
		w.s.logger.Info("batch delivered",
			log.Batch(b.ID.String()),
			log.Int("records", b.Size()),
			log.Int("bytes", len(body)),
			log.Int("attempts", len(res.Attempts)),
		)
		return nil
	case sender.StatusTooLarge:
		if b.Size() > 1 {
			return w.split(b, "rejected as too large")
		}
		return w.persist(b, failure.ReasonOversized, res.Attempts, fmt.Errorf("%w: %w", ErrSizePolicy, res.Err))
	case sender.StatusRejected:
		return w.persist(b, failure.ReasonRejected, res.Attempts, res.Err)
	case sender.StatusExhausted:
		return w.persist(b, failure.ReasonExhausted, res.Attempts, res.Err)
	default:
		return w.persist(b, failure.ReasonCancelled, res.Attempts, fmt.Errorf("%w: %w", ErrCancelled, res.Err))
	}
}

func (w *worker) split(b batch.Batch, why string) error {
	left, right, err := batch.Split(b)
	if err != nil {
		return err
	}
	w.report.SplitEvents++
	w.s.observer.RecordSplit()
	w.s.logger.Warn("splitting batch",
		log.Batch(b.ID.String()),
		log.String("reason", why),
		log.Int("records", b.Size()),
		log.String("left", left.ID.String()),
		log.String("right", right.ID.String()),
	)
	w.q.push(left, right)
	return nil
}

func (w *worker) persist(b batch.Batch, reason failure.Reason, attempts []sender.Attempt, cause error) error {
	path, err := w.s.store.Persist(b, reason, attempts, cause)
	if err != nil {
		w.s.observer.RecordPersistError()
		w.s.logger.Error("failed to persist batch", log.Batch(b.ID.String()), log.Err(err))
		return err
	}
	w.report.failed(reason, b.Size(), filepath.Base(path))
	w.s.observer.RecordPersisted(string(reason))
	w.s.observer.RecordBatch(string(reason), b.Size())
	w.s.logger.Error("batch persisted",
		log.Batch(b.ID.String()),
		log.String("reason", string(reason)),
		log.Int("records", b.Size()),
		log.Int("attempts", len(attempts)),
		log.String("path", path),
		log.Err(cause),
	)
	return nil
}
