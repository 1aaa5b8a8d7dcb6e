package exchange

import "time"

// breaker tracks consecutive connectivity failures for one exchange.
// All access happens under the Manager mutex.
type breaker struct {
	failureCount    int
	open            bool
	lastFailureTime time.Time
}

// isOpen reports the breaker state at time now, closing the breaker
// first when the reset window has elapsed since the last failure.
func (b *breaker) isOpen(now time.Time, resetAfter time.Duration) bool {
	if !b.open {
		return false
	}
	if now.Sub(b.lastFailureTime) > resetAfter {
		b.open = false
		b.failureCount = 0
		return false
	}
	return true
}

// recordFailure bumps the failure count and reports whether this
// failure tripped the breaker from closed to open.
func (b *breaker) recordFailure(now time.Time, threshold int) bool {
	b.failureCount++
	b.lastFailureTime = now
	if b.failureCount >= threshold && !b.open {
		b.open = true
		return true
	}
	return false
}

// recordSuccess clears the failure history and reports whether the
// breaker was open before the reset.
func (b *breaker) recordSuccess() bool {
	wasOpen := b.open
	b.failureCount = 0
	b.open = false
	return wasOpen
}
