package dispatch

import (
	"math/rand"
	"time"
)

// Backoff returns the delay before the next attempt of a job that has failed
// `attempts` times so far. The delay doubles per attempt from base up to max,
// with jitter in [d/2, d] so a burst of failures does not retry in lockstep.
func Backoff(base, max time.Duration, attempts int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	if attempts < 1 {
		attempts = 1
	}

	d := base
	for i := 1; i < attempts && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}

	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
