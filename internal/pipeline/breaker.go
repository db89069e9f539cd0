package pipeline

import "time"

// Breaker tracks consecutive correction failures. Once the threshold is
// reached, correction calls are skipped entirely for a cooldown window and
// the pipeline degrades to pass-through. There is no half-open probe state:
// the first call after cooldown is the probe, and its outcome governs the
// counter going forward.
//
// Accessed only by the pipeline goroutine.
type Breaker struct {
	threshold   int
	cooldown    time.Duration
	failures    int
	lastFailure time.Time
	clock       func() time.Time
}

func NewBreaker(failureThreshold int, cooldown time.Duration) *Breaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	return &Breaker{
		threshold: failureThreshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

func (b *Breaker) RecordSuccess() {
	b.failures = 0
}

func (b *Breaker) RecordFailure() {
	b.failures++
	b.lastFailure = b.clock()
}

// IsOpen reports whether correction calls must be suppressed this cycle.
func (b *Breaker) IsOpen() bool {
	if b.failures < b.threshold {
		return false
	}
	return b.clock().Sub(b.lastFailure) < b.cooldown
}

// Failures reports the current consecutive-failure count.
func (b *Breaker) Failures() int {
	return b.failures
}
