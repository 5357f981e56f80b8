package recovery

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes exponential retry delays with symmetric jitter.
type Backoff struct {
	base       time.Duration
	multiplier float64
	jitter     float64
	// rnd is replaceable for deterministic tests.
	rnd func() float64
}

// NewBackoff creates a Backoff. Jitter is a fraction of the computed delay,
// applied symmetrically (0.2 means ±20%).
func NewBackoff(base time.Duration, multiplier, jitter float64) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if multiplier < 1 {
		multiplier = 1
	}
	return &Backoff{base: base, multiplier: multiplier, jitter: jitter, rnd: rand.Float64}
}

// Delay returns the delay before the given attempt, starting at 1.
// Attempt 1 waits base, attempt 2 waits base*multiplier, and so on.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.base) * math.Pow(b.multiplier, float64(attempt-1))
	if b.jitter > 0 {
		// rnd in [0,1) mapped to [-jitter, +jitter).
		d *= 1 + b.jitter*(2*b.rnd()-1)
	}
	return time.Duration(d)
}
