package keeper

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	got, err := retry(context.Background(), 3, time.Millisecond, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("flaky")
		}
		return 42, nil
	})
	if err != nil || got != 42 || calls != 3 {
		t.Fatalf("got %d err %v after %d calls", got, err, calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	_, err := retry(context.Background(), 1, time.Millisecond, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	})
	if err == nil || calls != 2 {
		t.Fatalf("expected failure after 2 calls, got %d err %v", calls, err)
	}
}

func TestRetryHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := retry(ctx, 5, time.Hour, func(context.Context) (int, error) {
		return 0, errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
