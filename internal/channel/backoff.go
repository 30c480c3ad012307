package channel

import (
	"math/rand"
	"time"
)

// Backoff configures reconnect delays.
type Backoff struct {
	Min time.Duration // e.g. 500ms
	Max time.Duration // e.g. 30s
}

// DefaultBackoff returns the reconnect policy used when none is configured.
func DefaultBackoff() Backoff {
	return Backoff{
		Min: 500 * time.Millisecond,
		Max: 30 * time.Second,
	}
}

// Delay computes the wait before reconnect attempt using exponential backoff
// with full jitter. attempt is 1-based (1 => Min).
func (b Backoff) Delay(attempt int, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.Min <= 0 {
		b.Min = 500 * time.Millisecond
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}

	// exponential: min * 2^(attempt-1), capped before it can overflow
	delay := b.Max
	if attempt < 32 {
		if d := b.Min << (attempt - 1); d > 0 && d < b.Max {
			delay = d
		}
	}

	// full jitter: random in [0, delay]
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return time.Duration(rng.Int63n(int64(delay) + 1))
}
