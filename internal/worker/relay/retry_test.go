package relay

import (
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{6, 320 * time.Second},
		{7, 10 * time.Minute},
		{20, 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.failures); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestNextAttempt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	attempts, next, dead := NextAttempt(0, now)
	if attempts != 1 || dead {
		t.Fatalf("NextAttempt(0) = %d, dead %v", attempts, dead)
	}
	if !next.Equal(now.Add(5 * time.Second)) {
		t.Errorf("next = %v, want now+5s", next)
	}

	attempts, next, _ = NextAttempt(3, now)
	if attempts != 4 || !next.Equal(now.Add(40*time.Second)) {
		t.Errorf("NextAttempt(3) = %d, %v", attempts, next)
	}

	attempts, _, dead = NextAttempt(8, now)
	if attempts != 9 || dead {
		t.Errorf("NextAttempt(8) = %d, dead %v; want 9, false", attempts, dead)
	}

	attempts, _, dead = NextAttempt(9, now)
	if attempts != 10 || !dead {
		t.Errorf("NextAttempt(9) = %d, dead %v; want 10, true", attempts, dead)
	}
}
