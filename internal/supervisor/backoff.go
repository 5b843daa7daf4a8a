package supervisor

import (
	"math"
	"time"
)

const (
	baseReconnectDelay = 1 * time.Second
	maxReconnectDelay  = 60 * time.Second
)

// calculateBackoff returns min(2^attempt, 60) seconds for the attempt'th
// consecutive failure (attempt is 1 on the first failure). Callers must
// pass the post-increment failure count, not a pre-increment index, or the
// first failure wrongly reconnects with zero delay.
func calculateBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := time.Duration(math.Pow(2, float64(attempt))) * baseReconnectDelay
	if delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	return delay
}
