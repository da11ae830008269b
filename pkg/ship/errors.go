package ship

import "errors"

var (
	// ErrInvalidConfig is returned by New when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCancelled is returned by Run and Replay when ctx was cancelled before
	// every batch was delivered.
	ErrCancelled = errors.New("run cancelled")

	// ErrSizePolicy marks a single record whose compressed size exceeds the
	// payload limit.
	ErrSizePolicy = errors.New("record exceeds payload limit")
)
