package pipeline

import (
	"testing"
	"time"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewBreaker(3, 30*time.Second)
	b.clock = func() time.Time { return now }

	b.RecordFailure()
	b.RecordFailure()
	if b.IsOpen() {
		t.Fatal("breaker must stay closed below the threshold")
	}
	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("breaker must open at exactly the threshold")
	}
}

func TestBreakerClosesAfterCooldown(t *testing.T) {
	now := time.Unix(1000, 0)
	b := NewBreaker(2, 30*time.Second)
	b.clock = func() time.Time { return now }

	b.RecordFailure()
	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("breaker should be open")
	}
	now = now.Add(29 * time.Second)
	if !b.IsOpen() {
		t.Fatal("breaker should remain open within cooldown")
	}
	now = now.Add(2 * time.Second)
	if b.IsOpen() {
		t.Fatal("breaker should allow the probe call after cooldown")
	}
	// The probe failing re-opens immediately.
	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("failed probe should re-open the breaker")
	}
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	b := NewBreaker(3, 30*time.Second)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	if b.Failures() != 0 {
		t.Fatalf("expected counter reset, got %d", b.Failures())
	}
	b.RecordFailure()
	b.RecordFailure()
	if b.IsOpen() {
		t.Fatal("two failures after a success must not open a threshold-three breaker")
	}
}
