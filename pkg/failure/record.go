package failure

import (
	"encoding/json"
	"time"

	"github.com/bft-labs/bulkship/pkg/batch"
	"github.com/bft-labs/bulkship/pkg/sender"
)

// Reason marks why a batch was persisted.
type Reason string

const (
	// ReasonExhausted means every allowed attempt failed with a retryable outcome.
	ReasonExhausted Reason = "exhausted"
	// ReasonRejected means the receiver answered with a permanent error.
	ReasonRejected Reason = "rejected"
	// ReasonOversized means a single record compresses beyond the payload limit.
	ReasonOversized Reason = "oversized"
	// ReasonSerialization means a single record could not be encoded.
	ReasonSerialization Reason = "serialization"
	// ReasonCancelled means the run was cancelled before the batch was delivered.
	ReasonCancelled Reason = "cancelled"
)

// Replayable reports whether records persisted for r can be sent again
// unchanged. Unencodable records are stored as text and are not.
func (r Reason) Replayable() bool {
	return r != ReasonSerialization
}

// Record is the on-disk form of a failed batch.
type Record struct {
	BatchID   string            `json:"batchId"`
	Source    string            `json:"source"`
	Start     int               `json:"start"`
	End       int               `json:"end"`
	Parent    string            `json:"parent,omitempty"`
	Reason    Reason            `json:"reason"`
	Error     string            `json:"error,omitempty"`
	Records   []json.RawMessage `json:"records"`
	Attempts  []sender.Attempt  `json:"attempts"`
	WrittenAt time.Time         `json:"writtenAt"`
}

// ID returns the batch ID the record was persisted under.
func (r Record) ID() batch.ID {
	return batch.ID{Source: r.Source, Start: r.Start, End: r.End, Parent: r.Parent}
}

// Batch rebuilds the batch so it can be submitted again. Records are carried as
// raw JSON and re-encode byte for byte.
func (r Record) Batch() batch.Batch {
	records := make([]batch.Record, len(r.Records))
	for i, raw := range r.Records {
		records[i] = raw
	}
	return batch.Batch{ID: r.ID(), Records: records, Target: len(records)}
}
