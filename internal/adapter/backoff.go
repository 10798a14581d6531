package adapter

import (
	"math/rand/v2"
	"time"
)

// Backoff defines the retry delay of adapter reconnects and requests.
type Backoff struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps the delay.
	Max time.Duration
	// Factor multiplies the delay for each retry attempt.
	Factor float64
	// Jitter adds randomization as a fraction of the delay (0-1).
	Jitter float64

	rand func() float64
}

// DefaultBackoff starts at 500ms and grows by 1.5 up to 30s with 20% jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial: 500 * time.Millisecond,
		Max:     30 * time.Second,
		Factor:  1.5,
		Jitter:  0.2,
	}
}

// Base returns the delay for the given attempt (1-based) before jitter.
func (b Backoff) Base(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	initial := b.Initial
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	maxWait := b.Max
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 1.5
	}

	wait := initial
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > maxWait {
			return maxWait
		}
		wait = next
	}
	return min(wait, maxWait)
}

// Next returns the jittered delay for the given attempt (1-based). A rate
// limit that reports its reset time waits at least that long.
func (b Backoff) Next(attempt int, err error) time.Duration {
	wait := b.Base(attempt)
	if b.Jitter > 0 {
		jitter := min(b.Jitter, 1)
		random := rand.Float64
		if b.rand != nil {
			random = b.rand
		}
		delta := float64(wait) * jitter
		wait = wait - time.Duration(delta) + time.Duration(random()*2*delta)
	}

	if ae, ok := AsError(err); ok && ae.Kind == KindRateLimit && ae.ResetAfter > wait {
		return ae.ResetAfter
	}
	return wait
}
