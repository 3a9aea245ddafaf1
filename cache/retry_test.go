package cache_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xraph/datastruct/backoff"
	"github.com/xraph/datastruct/cache"
)

type tempErr struct{}

func (tempErr) Error() string   { return "temporary" }
func (tempErr) Temporary() bool { return true }

func fastPolicy(attempts int) cache.RetryPolicy {
	return cache.RetryPolicy{Attempts: attempts, Backoff: backoff.NewConstant(time.Millisecond)}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", cache.ErrTransient, true},
		{"wrapped sentinel", fmt.Errorf("remove: %w", cache.ErrTransient), true},
		{"temporary", tempErr{}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cache.IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := cache.Retry(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		if calls < 3 {
			return cache.ErrTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_FatalErrorNotRetried(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := cache.Retry(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	err := cache.Retry(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		return cache.ErrTransient
	})
	if !errors.Is(err, cache.ErrTransient) {
		t.Fatalf("err = %v, want wrapped ErrTransient", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := cache.RetryPolicy{Attempts: 10, Backoff: backoff.NewConstant(time.Hour)}

	errCh := make(chan error, 1)
	go func() {
		errCh <- cache.Retry(ctx, p, func(context.Context) error { return cache.ErrTransient })
	}()
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Retry did not observe cancellation")
	}
}
