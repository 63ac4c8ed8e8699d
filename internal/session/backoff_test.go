package session

import (
	"testing"
	"time"
)

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second)
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("attempt %d: delay = %s, want %s", i+1, got, w)
		}
	}
}

func TestBackoffResetReturnsToFloor(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second)
	b.Next()
	b.Next()
	b.Next()
	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Errorf("delay after reset = %s, want 1s", got)
	}
}

func TestBackoffNonDecreasing(t *testing.T) {
	b := NewBackoff(300*time.Millisecond, 10*time.Second)
	prev := time.Duration(0)
	for i := 0; i < 20; i++ {
		d := b.Next()
		if d < prev {
			t.Fatalf("attempt %d: delay %s decreased from %s", i, d, prev)
		}
		if d > 10*time.Second {
			t.Fatalf("attempt %d: delay %s above ceiling", i, d)
		}
		prev = d
	}
}
