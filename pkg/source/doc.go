// Package source reads records from local files for shipping.
//
// Supported formats are JSON Lines (.jsonl, .ndjson) and a single JSON array
// (.json), each optionally gzip-compressed (.gz suffix). Records are returned
// as json.RawMessage so they are shipped exactly as read.
//
// # Usage
//
//	r, err := source.Open("/data/orders.jsonl.gz")
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	for {
//	    rec, err := r.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package source
