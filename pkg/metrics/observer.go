// Package metrics exposes shipping activity to Prometheus.
//
// Components report through the Observer interface; NoopObserver is the
// default when metrics are not wanted.
package metrics

import "time"

// Observer receives shipping events.
type Observer interface {
	RecordAttempt(outcome string, status int, bytes int, elapsed time.Duration)
	RecordSplit()
	RecordBatch(outcome string, records int)
	RecordPersisted(reason string)
	RecordPersistError()
}

// NoopObserver discards all events.
type NoopObserver struct{}

func (NoopObserver) RecordAttempt(_ string, _ int, _ int, _ time.Duration) {}
func (NoopObserver) RecordSplit()                                          {}
func (NoopObserver) RecordBatch(_ string, _ int)                           {}
func (NoopObserver) RecordPersisted(_ string)                              {}
func (NoopObserver) RecordPersistError()                                   {}
