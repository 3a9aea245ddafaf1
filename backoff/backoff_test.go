package backoff_test

import (
	"testing"
	"time"

	"github.com/xraph/datastruct/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Millisecond)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Millisecond)
		}
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Millisecond, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Millisecond}, // clamped to attempt 1
		{1, 1 * time.Millisecond},
		{2, 2 * time.Millisecond},
		{3, 4 * time.Millisecond},
		{5, 16 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Millisecond, 10*time.Millisecond)

	if got := e.Delay(20); got != 10*time.Millisecond {
		t.Errorf("Delay(20) = %v, want %v (capped at Max)", got, 10*time.Millisecond)
	}
}

func TestExponentialWithJitter_WithinBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Millisecond, 50*time.Millisecond)

	for attempt := 1; attempt <= 12; attempt++ {
		ceiling := backoff.NewExponential(time.Millisecond, 50*time.Millisecond).Delay(attempt)
		for range 20 {
			got := e.Delay(attempt)
			if got < 0 || got > ceiling {
				t.Fatalf("Delay(%d) = %v, want in [0, %v]", attempt, got, ceiling)
			}
		}
	}
}

func TestSleep_Interrupted(t *testing.T) {
	done := make(chan struct{})
	close(done)

	if backoff.Sleep(done, time.Hour) {
		t.Fatal("Sleep should report interruption")
	}
	if !backoff.Sleep(nil, 0) {
		t.Fatal("zero delay should complete")
	}
}
