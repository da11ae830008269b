// Package ship delivers large ordered record sets to an HTTP endpoint.
//
// A Shipper plans the records into batches, compresses each batch, splits any
// batch that does not fit the payload limit, transmits with retries and
// persists every batch it could not deliver. No record is dropped silently:
// each one ends up delivered or in a failure document.
//
// # Usage
//
//	cfg := ship.DefaultConfig()
//	cfg.Endpoint = "https://ingest.example.com/v1/records"
//	cfg.AuthToken = token
//	cfg.FailureLogDir = "/var/lib/bulkship/failed"
//
//	s, err := ship.New(cfg, ship.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	report, err := s.Run(ctx, "orders", records)
//
// Failed batches are never retried automatically. Replay resubmits them on
// request:
//
//	report, err := s.Replay(ctx)
//
// # Concurrency
//
// Batches are processed by WorkerCount goroutines consuming a shared queue.
// A batch is owned by one worker at a time; split children go back on the
// queue. Cancelling ctx stops transmission: requests already in flight finish
// or time out, and every batch not yet delivered is persisted with reason
// "cancelled".
package ship
