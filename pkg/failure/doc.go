// Package failure persists batches that could not be delivered.
//
// Each failed batch is written as a self-contained JSON document holding the
// uncompressed records, the reason, the last error and the full attempt
// history. File names derive from the batch ID, so persisting the same batch
// twice overwrites the earlier document instead of duplicating it.
//
// # Usage
//
//	sink, err := failure.NewFileSink("/var/lib/bulkship/failed")
//	if err != nil {
//	    return err
//	}
//	path, err := sink.Persist(b, failure.ReasonExhausted, attempts, cause)
//
// Documents written by a FileSink can be listed and loaded again for replay:
//
//	paths, _ := sink.List()
//	for _, p := range paths {
//	    rec, err := sink.Load(p)
//	    ...
//	}
package failure
