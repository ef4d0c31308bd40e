package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewLimiter_Defaults(t *testing.T) {
	l := NewLimiter(10, -1)
	if l.burst != 1 {
		t.Errorf("expected burst 1 for negative input, got %d", l.burst)
	}
	if l.maxPause != DefaultMaxPause {
		t.Errorf("expected max pause %v, got %v", DefaultMaxPause, l.maxPause)
	}
}

func TestLimiter_WaitPerHost(t *testing.T) {
	l := NewLimiter(1, 1)
	ctx := context.Background()

	if err := l.Wait(ctx, "https://api.github.com/repos"); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	// A second host has its own bucket
	start := time.Now()
	if err := l.Wait(ctx, "https://raw.example.org/file"); err != nil {
		t.Fatalf("other host: %v", err)
	}
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Errorf("other host waited %v", d)
	}

	// The exhausted host blocks until the deadline
	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "https://api.github.com/commits"); err == nil {
		t.Error("expected the drained bucket to block past the deadline")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(0, 1)
	for i := 0; i < 50; i++ {
		if err := l.Wait(context.Background(), "https://api.github.com"); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
}

func TestLimiter_PauseUntil(t *testing.T) {
	l := NewLimiter(0, 1)
	url := "https://api.github.com/repos/x"

	l.PauseFor(url, 80*time.Millisecond)
	if d := l.Paused(url); d <= 0 || d > 80*time.Millisecond {
		t.Fatalf("unexpected remaining pause %v", d)
	}
	if d := l.Paused("https://other.example.org"); d != 0 {
		t.Errorf("pause leaked to another host: %v", d)
	}

	start := time.Now()
	if err := l.Wait(context.Background(), url); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if d := time.Since(start); d < 60*time.Millisecond {
		t.Errorf("expected Wait to honour the pause, returned after %v", d)
	}
	if d := l.Paused(url); d != 0 {
		t.Errorf("expected pause to be over, %v left", d)
	}
}

func TestLimiter_PauseNeverShortens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := NewLimiter(0, 1)
	l.now = func() time.Time { return now }
	url := "https://api.github.com"

	l.PauseUntil(url, now.Add(time.Minute))
	l.PauseUntil(url, now.Add(time.Second))
	if d := l.Paused(url); d != time.Minute {
		t.Errorf("expected 1m pause, got %v", d)
	}

	l.PauseUntil(url, now.Add(time.Hour))
	if d := l.Paused(url); d != DefaultMaxPause {
		t.Errorf("expected pause capped at %v, got %v", DefaultMaxPause, d)
	}
}

func TestLimiter_WaitCancelledDuringPause(t *testing.T) {
	l := NewLimiter(0, 1)
	url := "https://api.github.com"
	l.PauseFor(url, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, url); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestLimiter_SetHostRate(t *testing.T) {
	l := NewLimiter(0, 1)
	l.SetHostRate("slow.example.org", 0.01, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx, "https://slow.example.org/a"); err != nil {
		t.Fatalf("first request should use the burst: %v", err)
	}
	if err := l.Wait(ctx, "https://slow.example.org/b"); err == nil {
		t.Error("expected the slow host to block")
	}
	if err := l.Wait(context.Background(), "https://fast.example.org"); err != nil {
		t.Errorf("unlimited host: %v", err)
	}
}

func TestHostOf(t *testing.T) {
	host, err := hostOf("https://api.github.com/repos/PEDSnet")
	if err != nil {
		t.Fatalf("hostOf: %v", err)
	}
	if host != "api.github.com" {
		t.Errorf("expected api.github.com, got %s", host)
	}

	if _, err := hostOf("::invalid"); err == nil {
		t.Error("expected error for invalid URL")
	}
}
