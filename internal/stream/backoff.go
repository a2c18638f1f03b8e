package stream

import (
	"math/rand"
	"time"
)

// BackoffPolicy is an exponential reconnect schedule with jitter,
// replacing the teacher's fixed 5-second FixedReconnectIntervalMs
// (laserstream.go) per spec.md §4.2's "1s, doubling, capped at 30s,
// ±20% jitter" requirement.
type BackoffPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	JitterFrac float64
}

// DefaultBackoffPolicy returns spec.md §4.2's documented schedule.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Initial:    1 * time.Second,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		JitterFrac: 0.2,
	}
}

// Next returns the delay to wait before reconnect attempt n (1-indexed)
// and applies symmetric jitter of ±JitterFrac around the computed
// exponential value.
func (p BackoffPolicy) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Initial)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d > float64(p.Max) {
			d = float64(p.Max)
			break
		}
	}
	if d > float64(p.Max) {
		d = float64(p.Max)
	}

	jitter := d * p.JitterFrac
	delta := (rand.Float64()*2 - 1) * jitter
	result := d + delta
	if result < 0 {
		result = 0
	}
	return time.Duration(result)
}
