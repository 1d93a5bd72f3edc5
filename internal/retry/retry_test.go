package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func testEntry() (*logrus.Entry, *logtest.Hook) {
	log, hook := logtest.NewNullLogger()
	return logrus.NewEntry(log), hook
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	entry, hook := testEntry()
	cfg := Config{MaxAttempts: 3, BaseDelay: time.Millisecond, CapDelay: 10 * time.Millisecond, NoJitter: true}

	calls := 0
	got, err := Do(context.Background(), entry, "transcribe", cfg, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection reset")
		}
		return "transcript", nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got != "transcript" {
		t.Fatalf("unexpected result %q", got)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	if warnings != 2 {
		t.Fatalf("expected 2 retry warnings, got %d", warnings)
	}
}

func TestDoReturnsLastErrorAfterExhaustion(t *testing.T) {
	entry, _ := testEntry()
	cfg := Config{MaxAttempts: 3, BaseDelay: time.Millisecond, CapDelay: 5 * time.Millisecond, NoJitter: true}

	lastErr := errors.New("still down")
	calls := 0
	_, err := Do(context.Background(), entry, "submit", cfg, func() (int, error) {
		calls++
		return 0, lastErr
	})
	if !errors.Is(err, lastErr) {
		t.Fatalf("expected last error to propagate, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	entry, hook := testEntry()
	cfg := Config{MaxAttempts: 5, BaseDelay: time.Millisecond, CapDelay: 5 * time.Millisecond, NoJitter: true}

	calls := 0
	_, err := Do(context.Background(), entry, "analyze", cfg, func() (string, error) {
		calls++
		return "", Permanent(errors.New("bad request"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("permanent error must not retry, got %d attempts", calls)
	}
	if len(hook.AllEntries()) != 0 {
		t.Fatalf("expected no retry warnings, got %d", len(hook.AllEntries()))
	}
}

func TestBackoffScheduleIsMonotonicAndCapped(t *testing.T) {
	cfg := Config{MaxAttempts: 10, BaseDelay: 100 * time.Millisecond, CapDelay: time.Second, NoJitter: true}
	b := newBackOff(cfg)

	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		d := b.NextBackOff()
		if d == backoff.Stop {
			t.Fatalf("schedule stopped early at attempt %d", i+1)
		}
		if d < prev {
			t.Fatalf("delay decreased: attempt %d gave %v after %v", i+1, d, prev)
		}
		if d > cfg.CapDelay {
			t.Fatalf("delay %v exceeds cap %v", d, cfg.CapDelay)
		}
		prev = d
	}
	if prev != cfg.CapDelay {
		t.Fatalf("expected schedule to reach cap %v, ended at %v", cfg.CapDelay, prev)
	}
}
