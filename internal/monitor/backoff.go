package monitor

import "time"

// RetryStrategy computes how long to wait before polling again after
// consecutive failures
type RetryStrategy interface {
	// NextRetry returns the delay after the given number of consecutive failures
	NextRetry(failures int) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier per failure, capped at MaxDelay
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NextRetry calculates the delay using exponential backoff
func (s *ExponentialBackoff) NextRetry(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	delay := float64(s.InitialDelay)
	for i := 1; i < failures; i++ {
		delay *= s.Multiplier
		if s.MaxDelay > 0 && delay > float64(s.MaxDelay) {
			break
		}
	}

	if s.MaxDelay > 0 && delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}
