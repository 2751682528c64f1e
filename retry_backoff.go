package chatsdk

import (
	"math"
	"time"
)

// BackoffCalculator returns how long to wait before retry number attempt.
type BackoffCalculator func(attempt int) time.Duration

// ExponentialBackoff waits base, 2*base, 4*base... for attempts 0, 1, 2...
func ExponentialBackoff(base time.Duration) BackoffCalculator {
	return func(attempt int) time.Duration {
		return time.Duration(float64(base) * math.Pow(2.0, float64(attempt)))
	}
}
