package backoff

import (
	"context"
	"testing"
	"time"
)

func TestPolicyStep(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		attempt  int
		expected time.Duration
	}{
		{
			name:     "first attempt returns initial",
			policy:   Policy{Initial: 100 * time.Millisecond, Max: 10 * time.Second, Factor: 2},
			attempt:  1,
			expected: 100 * time.Millisecond,
		},
		{
			name:     "second attempt doubles",
			policy:   Policy{Initial: 100 * time.Millisecond, Max: 10 * time.Second, Factor: 2},
			attempt:  2,
			expected: 200 * time.Millisecond,
		},
		{
			name:     "delay is clamped to max",
			policy:   Policy{Initial: 100 * time.Millisecond, Max: 300 * time.Millisecond, Factor: 2},
			attempt:  5,
			expected: 300 * time.Millisecond,
		},
		{
			name:     "zero attempt treated as first",
			policy:   Policy{Initial: 100 * time.Millisecond, Max: 10 * time.Second, Factor: 2},
			attempt:  0,
			expected: 100 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.Step(tt.attempt)
			if got != tt.expected {
				t.Errorf("Step(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestPollPolicySequence(t *testing.T) {
	p := PollPolicy()

	want := []time.Duration{
		500 * time.Millisecond,
		750 * time.Millisecond,
		1125 * time.Millisecond,
		1687500 * time.Microsecond,
		2 * time.Second,
		2 * time.Second,
	}

	prev := time.Duration(0)
	for i, expected := range want {
		got := p.Step(i + 1)
		if got != expected {
			t.Errorf("Step(%d) = %v, want %v", i+1, got, expected)
		}
		if got < prev {
			t.Errorf("Step(%d) = %v decreased from %v", i+1, got, prev)
		}
		if got > 2*time.Second {
			t.Errorf("Step(%d) = %v exceeds 2s cap", i+1, got)
		}
		prev = got
	}
}

func TestSleepCompletes(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("Sleep returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("Sleep returned after %v, want >= 10ms", elapsed)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Sleep(ctx, time.Minute); err != context.Canceled {
		t.Errorf("Sleep on cancelled context = %v, want context.Canceled", err)
	}
}

func TestSleepZeroDuration(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("Sleep(0) = %v, want nil", err)
	}
}
