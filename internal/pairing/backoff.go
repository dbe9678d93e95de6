package pairing

import (
	mathrand "math/rand/v2"
	"time"
)

const maxJitter = 500 * time.Millisecond

// backoff returns the delay before retry number attempt (1-based): base doubled per
// retry, capped at max, plus jitter of up to 500ms or base, whichever is smaller.
func backoff(attempt int, base time.Duration, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 2 * time.Second
	}
	if max < base {
		max = base
	}

	delay := base
	for i := 1; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	jitter := maxJitter
	if base < jitter {
		jitter = base
	}
	return delay + time.Duration(mathrand.Int64N(int64(jitter)+1))
}
