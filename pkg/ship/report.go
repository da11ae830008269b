package ship

import "github.com/bft-labs/bulkship/pkg/failure"

// Status is the final state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// RunReport summarizes a run.
type RunReport struct {
	// BatchesTotal counts leaf batches that reached a terminal state: delivered
	// or persisted. Batches replaced by their split children are not counted.
	BatchesTotal int `json:"batchesTotal"`
	Succeeded    int `json:"succeeded"`
	SplitEvents  int `json:"splitEvents"`
	// PermanentFailures is Oversized + Rejected.
	PermanentFailures int `json:"permanentFailures"`
	ExhaustedRetries  int `json:"exhaustedRetries"`

	Oversized             int `json:"oversized"`
	Rejected              int `json:"rejected"`
	SerializationFailures int `json:"serializationFailures"`
	Cancelled             int `json:"cancelled"`

	// Records counts records in terminal batches.
	Records int `json:"records"`

	Status     Status `json:"status"`
	DurationMs int64  `json:"durationMs"`

	persisted []string
}

// Add merges the counters of o into r.
func (r *RunReport) Add(o RunReport) {
	r.BatchesTotal += o.BatchesTotal
	r.Succeeded += o.Succeeded
	r.SplitEvents += o.SplitEvents
	r.PermanentFailures += o.PermanentFailures
	r.ExhaustedRetries += o.ExhaustedRetries
	r.Oversized += o.Oversized
	r.Rejected += o.Rejected
	r.SerializationFailures += o.SerializationFailures
	r.Cancelled += o.Cancelled
	r.Records += o.Records
	r.persisted = append(r.persisted, o.persisted...)
}

// Failed returns the number of batches persisted instead of delivered.
func (r RunReport) Failed() int {
	return r.BatchesTotal - r.Succeeded
}

// Persisted returns the file names of failure documents written during the run.
func (r RunReport) Persisted() []string {
	return append([]string(nil), r.persisted...)
}

func (r *RunReport) delivered(records int) {
	r.BatchesTotal++
	r.Succeeded++
	r.Records += records
}

func (r *RunReport) failed(reason failure.Reason, records int, name string) {
	r.BatchesTotal++
	r.Records += records
	r.persisted = append(r.persisted, name)

	switch reason {
	case failure.ReasonOversized:
		r.Oversized++
		r.PermanentFailures++
	case failure.ReasonRejected:
		r.Rejected++
		r.PermanentFailures++
	case failure.ReasonExhausted:
		r.ExhaustedRetries++
	case failure.ReasonSerialization:
		r.SerializationFailures++
	case failure.ReasonCancelled:
		r.Cancelled++
	}
}
