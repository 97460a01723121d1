package backoff_test

import (
	"testing"
	"time"

	"capstan/internal/backoff"
)

func TestDelayDoublesPerAttempt(t *testing.T) {
	t.Parallel()

	s := backoff.Strategy{
		Base:   time.Second,
		Max:    30 * time.Second,
		Jitter: func() time.Duration { return 0 },
	}

	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, want := range expected {
		if got := s.Delay(i + 1); got != want {
			t.Fatalf("attempt %d: expected %v, got %v", i+1, want, got)
		}
	}
}

func TestDelayRespectsCap(t *testing.T) {
	t.Parallel()

	s := backoff.Strategy{
		Base:   5 * time.Second,
		Max:    30 * time.Second,
		Jitter: func() time.Duration { return 900 * time.Millisecond },
	}

	for attempt := 1; attempt <= 12; attempt++ {
		if got := s.Delay(attempt); got > 30*time.Second {
			t.Fatalf("attempt %d: delay %v exceeds cap", attempt, got)
		}
	}
	if got := s.Delay(10); got != 30*time.Second {
		t.Fatalf("expected late attempts to saturate at the cap, got %v", got)
	}
}

func TestDelayIsNonDecreasing(t *testing.T) {
	t.Parallel()

	s := backoff.Strategy{
		Base:   time.Second,
		Max:    30 * time.Second,
		Jitter: func() time.Duration { return 0 },
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 8; attempt++ {
		got := s.Delay(attempt)
		if got < prev {
			t.Fatalf("attempt %d: delay %v decreased below %v", attempt, got, prev)
		}
		prev = got
	}
}

func TestDefaultJitterStaysBounded(t *testing.T) {
	t.Parallel()

	s := backoff.Strategy{Base: time.Second, Max: 30 * time.Second}
	for i := 0; i < 200; i++ {
		got := s.Delay(1)
		if got < time.Second || got >= time.Second+backoff.DefaultJitterMax {
			t.Fatalf("delay %v outside [base, base+jitter)", got)
		}
	}
}

func TestDelayClampsBadInputs(t *testing.T) {
	t.Parallel()

	s := backoff.Strategy{Base: -time.Second, Max: time.Second, Jitter: func() time.Duration { return 0 }}
	if got := s.Delay(0); got != 0 {
		t.Fatalf("expected zero delay for negative base, got %v", got)
	}
}
