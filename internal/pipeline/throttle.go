package pipeline

import "time"

// Throttle enforces a minimum wall-clock interval between real correction
// calls. It neither queues nor delays: a denied acquire is simply not made
// this cycle, and denial has no side effects.
//
// Accessed only by the pipeline goroutine.
type Throttle struct {
	minInterval time.Duration
	lastCall    time.Time
	clock       func() time.Time
}

func NewThrottle(minInterval time.Duration) *Throttle {
	return &Throttle{
		minInterval: minInterval,
		clock:       time.Now,
	}
}

// TryAcquire reports whether a call is allowed now, recording the timestamp
// only when it is.
func (t *Throttle) TryAcquire() bool {
	if t.minInterval <= 0 {
		return true
	}
	now := t.clock()
	if t.lastCall.IsZero() || now.Sub(t.lastCall) >= t.minInterval {
		t.lastCall = now
		return true
	}
	return false
}
