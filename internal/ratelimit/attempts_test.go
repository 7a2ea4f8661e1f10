package ratelimit

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestLimiter(t *testing.T, opts Options) *Limiter {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "attempts.db"), opts)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLimiterLockout(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	l := openTestLimiter(t, Options{MaxAttempts: 3}).WithClock(func() time.Time { return now })

	const client = "203.0.113.7"

	for i := 0; i < 2; i++ {
		if err := l.RecordFailure(client); err != nil {
			t.Fatalf("RecordFailure() error: %v", err)
		}
		if ok, _ := l.Allowed(client); !ok {
			t.Fatalf("Allowed() = false after %d failures, want true", i+1)
		}
	}

	if err := l.RecordFailure(client); err != nil {
		t.Fatalf("RecordFailure() error: %v", err)
	}
	if ok, _ := l.Allowed(client); ok {
		t.Fatal("Allowed() = true after exhausting attempts, want lockout")
	}

	// Other clients are unaffected.
	if ok, _ := l.Allowed("198.51.100.1"); !ok {
		t.Error("Allowed() = false for a different client")
	}

	// The lockout expires.
	now = now.Add(DefaultLockout + time.Second)
	if ok, _ := l.Allowed(client); !ok {
		t.Error("Allowed() = false after lockout expiry, want true")
	}
}

func TestLimiterWindowReset(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	l := openTestLimiter(t, Options{MaxAttempts: 3}).WithClock(func() time.Time { return now })

	const client = "203.0.113.8"

	l.RecordFailure(client)
	l.RecordFailure(client)

	// Failures outside the window start a fresh count.
	now = now.Add(DefaultWindow + time.Minute)
	if err := l.RecordFailure(client); err != nil {
		t.Fatalf("RecordFailure() error: %v", err)
	}
	if ok, _ := l.Allowed(client); !ok {
		t.Error("Allowed() = false, want true after window reset")
	}
}

func TestLimiterReset(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	l := openTestLimiter(t, Options{MaxAttempts: 2}).WithClock(func() time.Time { return now })

	const client = "203.0.113.9"

	l.RecordFailure(client)
	l.RecordFailure(client)
	if ok, _ := l.Allowed(client); ok {
		t.Fatal("expected lockout before reset")
	}

	if err := l.Reset(client); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if ok, _ := l.Allowed(client); !ok {
		t.Error("Allowed() = false after Reset, want true")
	}
}
