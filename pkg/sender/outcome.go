package sender

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrTooLarge is returned when the receiver answers 413.
	ErrTooLarge = errors.New("sender: payload too large")

	// ErrRejected is returned when the receiver rejects a batch permanently.
	ErrRejected = errors.New("sender: rejected by receiver")

	// ErrExhausted is returned when every allowed attempt was retryable.
	ErrExhausted = errors.New("sender: retries exhausted")

	// ErrCancelled is returned when the caller cancels between attempts.
	ErrCancelled = errors.New("sender: cancelled")
)

// Outcome classifies a single transmission attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetryable Outcome = "retryable"
	OutcomePermanent Outcome = "permanent"
	OutcomeTooLarge  Outcome = "too_large"
)

// Classify maps an HTTP status code to an Outcome.
func Classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == http.StatusRequestEntityTooLarge:
		return OutcomeTooLarge
	case status == http.StatusTooManyRequests, status >= 500:
		return OutcomeRetryable
	default:
		return OutcomePermanent
	}
}

// Attempt records one transmission attempt.
type Attempt struct {
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   Outcome   `json:"outcome"`
	Status    int       `json:"status,omitempty"`
	Bytes     int       `json:"bytes"`
	ElapsedMs int64     `json:"elapsedMs"`
	Error     string    `json:"error,omitempty"`
}

// Status is the terminal state of Deliver.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusTooLarge  Status = "too_large"
	StatusRejected  Status = "rejected"
	StatusExhausted Status = "exhausted"
	StatusCancelled Status = "cancelled"
)

// Result is the outcome of Deliver.
type Result struct {
	Status   Status
	Attempts []Attempt
	// Err is nil only for StatusDelivered.
	Err error
}
