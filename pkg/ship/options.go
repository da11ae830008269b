package ship

import (
	"github.com/bft-labs/bulkship/pkg/failure"
	"github.com/bft-labs/bulkship/pkg/log"
	"github.com/bft-labs/bulkship/pkg/metrics"
	"github.com/bft-labs/bulkship/pkg/sender"
)

// FailureStore persists failed batches and gives them back for replay.
// *failure.FileSink satisfies this interface.
type FailureStore interface {
	failure.Sink
	List() ([]string, error)
	Load(path string) (failure.Record, error)
	Remove(path string) error
}

// Option configures optional behavior of a Shipper.
type Option func(*options)

type options struct {
	httpClient sender.HTTPClient
	logger     log.Logger
	observer   metrics.Observer
	backoff    *sender.Backoff
	store      FailureStore
}

func defaultOptions() options {
	return options{
		logger:   log.NewNoopLogger(),
		observer: metrics.NoopObserver{},
	}
}

// WithHTTPClient sets the client used for transmission.
// If not provided, a default *http.Client is used; each attempt is bounded by
// Config.RequestTimeout.
func WithHTTPClient(client sender.HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a logger. If not provided, nothing is logged.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(observer metrics.Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithBackoff overrides the backoff policy built from Config.
func WithBackoff(b sender.Backoff) Option {
	return func(o *options) {
		o.backoff = &b
	}
}

// WithSink replaces the FileSink built from Config.FailureLogDir.
func WithSink(store FailureStore) Option {
	return func(o *options) {
		o.store = store
	}
}
