package backoff_test

import (
	"testing"
	"time"

	"github.com/warlockedward/AI-Bid-Assistant-sub001/backoff"
)

// Constructors are the only way callers obtain a Strategy; the Delay
// methods live on the pointer types.
var (
	_ backoff.Strategy = backoff.NewConstant(0)
	_ backoff.Strategy = backoff.NewExponential(0, 0)
	_ backoff.Strategy = backoff.NewExponentialWithJitter(0, 0)
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second}, // 1 * 2^0
		{2, 2 * time.Second}, // 1 * 2^1
		{3, 4 * time.Second}, // 1 * 2^2
		{4, 8 * time.Second}, // 1 * 2^3
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	if got := e.Delay(20); got != 10*time.Second {
		t.Errorf("Delay(20) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
}

func TestExponentialWithJitter_StaysInRange(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 8*time.Second)

	for attempt := 1; attempt <= 10; attempt++ {
		for range 50 {
			got := e.Delay(attempt)
			if got < 0 {
				t.Fatalf("Delay(%d) = %v, must not be negative", attempt, got)
			}
			if got > 8*time.Second {
				t.Fatalf("Delay(%d) = %v, must not exceed Max", attempt, got)
			}
		}
	}
}

func TestDefaultStrategy(t *testing.T) {
	s := backoff.DefaultStrategy()
	if got := s.Delay(1); got > 30*time.Second {
		t.Errorf("default Delay(1) = %v, want ≤ 30s", got)
	}
}
