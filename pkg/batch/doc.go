// Package batch partitions an ordered record sequence into transmission
// batches and subdivides batches that encode too large for the receiver.
//
// A batch is identified by the half-open position range it covers in the
// original sequence, so leaf batches sorted by ID reproduce the input exactly
// no matter how often they were split.
//
// # Usage
//
//	batches, err := batch.Plan("orders", records, 1000)
//	if err != nil {
//	    return err
//	}
//	for _, b := range batches {
//	    if tooLarge(b) {
//	        left, right, err := batch.Split(b)
//	        // ...
//	    }
//	}
//
// Fit runs the whole split loop for one batch against a size function, using
// an explicit work stack instead of recursion.
package batch
