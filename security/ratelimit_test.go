package security

import (
	"fmt"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 3, nil)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("192.0.2.1") {
			t.Fatalf("request %d within burst was rejected", i+1)
		}
	}
	if rl.Allow("192.0.2.1") {
		t.Error("request beyond burst should be rejected")
	}
	if !rl.Allow("192.0.2.2") {
		t.Error("other identifiers have their own bucket")
	}
}

func TestRateLimiter_LRUEviction(t *testing.T) {
	rl := NewRateLimiterWithConfig(1, 1, 2, nil)
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")
	rl.Allow("a") // a is now most recent
	rl.Allow("c") // evicts b

	stats := rl.GetStats()
	if stats.CurrentEntries != 2 {
		t.Errorf("CurrentEntries = %d, want 2", stats.CurrentEntries)
	}
	if stats.TotalEvictions != 1 {
		t.Errorf("TotalEvictions = %d, want 1", stats.TotalEvictions)
	}
	if stats.MemoryPressure != 100 {
		t.Errorf("MemoryPressure = %v, want 100", stats.MemoryPressure)
	}

	// b lost its exhausted bucket, so it is allowed again.
	if !rl.Allow("b") {
		t.Error("evicted identifier should start with a fresh bucket")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(10, 10, nil)
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		rl.Allow(fmt.Sprintf("10.0.0.%d", i))
	}

	rl.Cleanup(time.Hour)
	if got := rl.GetStats().CurrentEntries; got != 5 {
		t.Errorf("fresh entries removed: CurrentEntries = %d, want 5", got)
	}

	time.Sleep(5 * time.Millisecond)
	rl.Cleanup(time.Millisecond)
	stats := rl.GetStats()
	if stats.CurrentEntries != 0 {
		t.Errorf("CurrentEntries = %d, want 0", stats.CurrentEntries)
	}
	if stats.TotalCleanups != 1 {
		t.Errorf("TotalCleanups = %d, want 1", stats.TotalCleanups)
	}
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	tests := []struct {
		rps  float64
		want int
	}{
		{rps: 10, want: 1},
		{rps: 0.5, want: 2},
		{rps: 0, want: 60},
	}
	for _, tt := range tests {
		rl := NewRateLimiter(tt.rps, 1, nil)
		if got := rl.RetryAfter(); got != tt.want {
			t.Errorf("RetryAfter() with %v rps = %d, want %d", tt.rps, got, tt.want)
		}
		rl.Stop()
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.Stop()
	rl.Stop()
}
