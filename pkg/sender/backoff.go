package sender

import (
	"context"
	"math/rand"
	"time"
)

// maxCeiling bounds delays when Backoff.Max is unset.
const maxCeiling = time.Hour

// Backoff is an exponential backoff policy. The zero value never waits.
//
// Delay(n) = min(Base * 2^(n-1) * (1 + Jitter*r), Max) with r in [0, 1).
// Jitter only ever lengthens a delay by less than one doubling step, so
// successive delays for the same batch are non-decreasing.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	rand func() float64
}

// Delay returns the wait before retry number retry (1-based).
func (b Backoff) Delay(retry int) time.Duration {
	if b.Base <= 0 || retry < 1 {
		return 0
	}
	ceiling := b.Max
	if ceiling <= 0 {
		ceiling = maxCeiling
	}

	d := b.Base
	if d >= ceiling {
		return ceiling
	}
	for i := 1; i < retry; i++ {
		// compare before doubling so a Max near MaxInt64 cannot overflow
		if d > ceiling/2 {
			return ceiling
		}
		d *= 2
	}

	if j := b.jitter(); j > 0 {
		r := rand.Float64
		if b.rand != nil {
			r = b.rand
		}
		extra := time.Duration(float64(d) * j * r())
		if extra >= ceiling-d {
			return ceiling
		}
		d += extra
	}
	return d
}

// Wait blocks for Delay(retry) or until ctx is done.
func (b Backoff) Wait(ctx context.Context, retry int) error {
	d := b.Delay(retry)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (b Backoff) jitter() float64 {
	switch {
	case b.Jitter <= 0:
		return 0
	case b.Jitter >= 1:
		return 0.99
	default:
		return b.Jitter
	}
}
