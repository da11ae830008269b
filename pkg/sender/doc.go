// Package sender transmits encoded batches to the receiving HTTP endpoint.
//
// A Transmitter performs single attempts (Send) and the full retry loop
// (Deliver). Each attempt is classified from the HTTP outcome:
//
//	network error, timeout   retryable
//	2xx                      success
//	413                      too large: returned to the caller for splitting
//	429, 5xx                 retryable
//	other status             permanent
//
// Retryable attempts are retried up to MaxRetries times, waiting between
// attempts according to a Backoff policy. Backoff is a plain value; a zero
// Base disables waiting entirely, which is what tests use.
//
// # Usage
//
//	tx := sender.New(sender.Config{
//	    Endpoint:       "https://ingest.example.com/v1/records",
//	    AuthToken:      token,
//	    RequestTimeout: 30 * time.Second,
//	    MaxRetries:     5,
//	    Backoff:        sender.Backoff{Base: time.Second, Max: 30 * time.Second},
//	}, http.DefaultClient, logger, nil)
//
//	res := tx.Deliver(ctx, b.ID, body)
//	switch res.Status {
//	case sender.StatusDelivered:
//	    // done
//	case sender.StatusTooLarge:
//	    // split and resubmit
//	}
package sender
