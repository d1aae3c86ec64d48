package session

import (
	"math/rand"
	"time"
)

// Delay returns the wait before retry attempt+1, where attempt is the
// 1-based number of the attempt that just failed.
func (c BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if c.InitialDelay <= 0 {
		return 0
	}
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= mult
		if c.MaxDelay > 0 && d >= float64(c.MaxDelay) {
			d = float64(c.MaxDelay)
			break
		}
	}
	if c.Jitter {
		// spread over [0.5d, 1.5d)
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		d *= f
	}
	return time.Duration(d)
}

// Steady returns c without jitter, for callers that need repeatable waits.
func (c BackoffConfig) Steady() BackoffConfig {
	c.Jitter = false
	return c
}
