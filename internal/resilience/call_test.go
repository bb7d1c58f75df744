package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

type result struct {
	ID string `json:"id"`
}

func newTestCaller(opts ...CallerOption) (*Caller, *MemoryCache) {
	cache := NewMemoryCache()
	cfg := CallerConfig{
		Timeout: time.Second,
		Retry: RetryConfig{
			MaxRetries:     2,
			BaseDelay:      1 * time.Millisecond,
			MaxDelay:       10 * time.Millisecond,
			JitterFraction: 0,
		},
		CacheTTL: time.Minute,
	}
	return NewCaller(cfg, cache, opts...), cache
}

func TestCallWrite_CachesResult(t *testing.T) {
	caller, cache := newTestCaller()
	args := map[string]any{"amount": 10.5}

	var calls int
	fn := func(_ context.Context) (result, error) {
		calls++
		return result{ID: "rec-1"}, nil
	}

	got, err := CallWrite(context.Background(), caller, "alice", "expense.create", args, fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "rec-1" {
		t.Errorf("expected rec-1, got %s", got.ID)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 cached entry, got %d", cache.Len())
	}

	// Second call short-circuits on the cache; fn never runs again.
	got, err = CallWrite(context.Background(), caller, "alice", "expense.create", args, fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "rec-1" {
		t.Errorf("expected cached rec-1, got %s", got.ID)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 downstream call, got %d", calls)
	}
}

func TestCallWrite_DifferentArgsMiss(t *testing.T) {
	caller, _ := newTestCaller()

	var calls int
	fn := func(_ context.Context) (result, error) {
		calls++
		return result{ID: "rec"}, nil
	}

	_, _ = CallWrite(context.Background(), caller, "alice", "expense.create", map[string]any{"amount": 10.0}, fn)
	_, _ = CallWrite(context.Background(), caller, "alice", "expense.create", map[string]any{"amount": 20.0}, fn)

	if calls != 2 {
		t.Errorf("expected 2 downstream calls for distinct args, got %d", calls)
	}
}

func TestCallWrite_FailureNotCached(t *testing.T) {
	caller, cache := newTestCaller()

	_, err := CallWrite(context.Background(), caller, "alice", "expense.create", map[string]any{"amount": 10.0},
		func(_ context.Context) (result, error) {
			return result{}, FromHTTPStatus(errors.New("invalid"), 422, 0)
		})
	if err == nil {
		t.Fatal("expected error")
	}
	if cache.Len() != 0 {
		t.Errorf("expected no cached entry after failure, got %d", cache.Len())
	}
}

func TestCallWrite_RetriesThenCachesSuccess(t *testing.T) {
	caller, _ := newTestCaller()

	var calls int
	got, err := CallWrite(context.Background(), caller, "alice", "expense.create", map[string]any{"amount": 10.0},
		func(_ context.Context) (result, error) {
			calls++
			if calls < 3 {
				return result{}, NewClassifiedError(errors.New("flaky"), CategoryTransient)
			}
			return result{ID: "rec-1"}, nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "rec-1" {
		t.Errorf("expected rec-1, got %s", got.ID)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestCallRead_BypassesCache(t *testing.T) {
	caller, cache := newTestCaller()

	var calls int
	for i := 0; i < 2; i++ {
		_, err := CallRead(context.Background(), caller, "expense.list", func(_ context.Context) ([]string, error) {
			calls++
			return []string{"a"}, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls != 2 {
		t.Errorf("expected reads to always hit downstream, got %d calls", calls)
	}
	if cache.Len() != 0 {
		t.Errorf("expected reads to never populate the cache, got %d entries", cache.Len())
	}
}

func TestCallRead_TimeoutClassifiedTransient(t *testing.T) {
	cache := NewMemoryCache()
	caller := NewCaller(CallerConfig{
		Timeout: 5 * time.Millisecond,
		Retry: RetryConfig{
			MaxRetries:     1,
			BaseDelay:      1 * time.Millisecond,
			MaxDelay:       5 * time.Millisecond,
			JitterFraction: 0,
		},
	}, cache)

	var calls int
	_, err := CallRead(context.Background(), caller, "expense.list", func(ctx context.Context) ([]string, error) {
		calls++
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if cls := Classify(err); cls.Category != CategoryTransient {
		t.Errorf("expected transient classification for attempt timeout, got %s", cls.Category)
	}
	// Per-attempt timeouts are retryable: 1 attempt + 1 retry.
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestCallRead_ThroughBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	cache := NewMemoryCache()
	caller := NewCaller(CallerConfig{
		Timeout: time.Second,
		Retry: RetryConfig{
			MaxRetries:     3,
			BaseDelay:      1 * time.Millisecond,
			MaxDelay:       5 * time.Millisecond,
			JitterFraction: 0,
		},
	}, cache, WithBreaker(cb))

	var calls int
	_, err := CallRead(context.Background(), caller, "expense.list", func(_ context.Context) ([]string, error) {
		calls++
		return nil, NewClassifiedError(errors.New("down"), CategoryUpstream)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	// The breaker opens after 2 failures; remaining retries are rejected
	// without reaching downstream.
	if calls != 2 {
		t.Errorf("expected breaker to stop downstream attempts at 2, got %d", calls)
	}
	if cb.State() != CircuitOpen {
		t.Errorf("expected open breaker, got %s", cb.State())
	}
}
