package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v5"
)

// ─── Retry Tests ───

func TestRetry_StopsOnSuccess(t *testing.T) {
	var seen []int
	got, err := retry(context.Background(), 5, 0,
		func(attempt int) (string, error) {
			seen = append(seen, attempt)
			if attempt < 2 {
				return "", errors.New("not yet")
			}
			return "done", nil
		}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "done" {
		t.Errorf("expected done, got %q", got)
	}
	if len(seen) != 3 || seen[0] != 0 || seen[2] != 2 {
		t.Errorf("expected attempts 0..2, got %v", seen)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls, notified := 0, 0
	_, err := retry(context.Background(), 3, 0,
		func(int) (int, error) {
			calls++
			return 0, boom
		},
		func(int, error) { notified++ })

	if !errors.Is(err, boom) {
		t.Fatalf("expected the last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if notified != 2 {
		t.Errorf("onFailure runs only before a retry, got %d", notified)
	}
}

func TestRetry_PermanentErrorStopsImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	_, err := retry(context.Background(), 5, 0,
		func(int) (int, error) {
			calls++
			return 0, backoff.Permanent(fatal)
		}, nil)

	if !errors.Is(err, fatal) {
		t.Fatalf("expected the permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestRetry_ZeroAttemptsStillRunsOnce(t *testing.T) {
	calls := 0
	retry(context.Background(), 0, 0, func(int) (int, error) {
		calls++
		return 1, nil
	}, nil)
	if calls != 1 {
		t.Errorf("expected one call, got %d", calls)
	}
}
