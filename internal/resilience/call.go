package resilience

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CallerConfig controls the composed timeout, retry, and idempotency
// behavior around downstream calls.
type CallerConfig struct {
	// Timeout bounds each individual attempt. Default: 30s. The caller stops
	// waiting when it fires; the underlying request is cancelled via context
	// but a write may still land downstream, which is why write results are
	// keyed on argument identity in the idempotency cache.
	Timeout time.Duration

	// Retry configures classified retry with exponential backoff.
	Retry RetryConfig

	// CacheTTL is how long successful write results are cached. Default: 24h.
	CacheTTL time.Duration
}

// DefaultCallerConfig returns the standard wrapper configuration.
func DefaultCallerConfig() CallerConfig {
	return CallerConfig{
		Timeout:  30 * time.Second,
		Retry:    DefaultRetryConfig(),
		CacheTTL: DefaultIdempotencyTTL,
	}
}

// Caller wraps externally supplied units of work with a per-attempt timeout,
// classified retry, an optional circuit breaker, and (for writes) the
// idempotency cache.
type Caller struct {
	cfg     CallerConfig
	cache   IdempotencyCache
	breaker *CircuitBreaker
}

// CallerOption configures a Caller.
type CallerOption func(*Caller)

// WithBreaker installs a circuit breaker ahead of downstream attempts.
func WithBreaker(cb *CircuitBreaker) CallerOption {
	return func(c *Caller) {
		c.breaker = cb
	}
}

// NewCaller creates a resilient call wrapper. cache may not be nil; writes
// depend on it to suppress duplicate downstream effects across retries.
func NewCaller(cfg CallerConfig, cache IdempotencyCache, opts ...CallerOption) *Caller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultIdempotencyTTL
	}
	c := &Caller{cfg: cfg, cache: cache}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CallWrite runs a write operation through the full wrapper. A cache hit for
// the (identity, operation, args) key short-circuits before any network
// activity; on a miss the operation runs under timeout+retry and its result
// is cached on success.
func CallWrite[T any](ctx context.Context, c *Caller, identity, operation string, args map[string]any, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	key, err := IdempotencyKey(identity, operation, args)
	if err != nil {
		return zero, err
	}

	if cached, ok, err := c.cache.Check(ctx, key); err != nil {
		zap.L().Warn("idempotency check failed, treating as miss",
			zap.String("operation", operation),
			zap.Error(err),
		)
	} else if ok {
		var val T
		if err := json.Unmarshal(cached, &val); err != nil {
			return zero, eris.Wrapf(err, "call: decode cached result for %s", operation)
		}
		zap.L().Debug("idempotency cache hit",
			zap.String("operation", operation),
			zap.String("key", key),
		)
		return val, nil
	}

	val, err := CallRead(ctx, c, operation, fn)
	if err != nil {
		return zero, err
	}

	encoded, err := json.Marshal(val)
	if err != nil {
		return zero, eris.Wrapf(err, "call: encode result for %s", operation)
	}
	if err := c.cache.Store(ctx, key, encoded, c.cfg.CacheTTL); err != nil {
		// The write itself succeeded; a cache store failure only weakens
		// duplicate suppression on a later re-run.
		zap.L().Warn("idempotency store failed",
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
	return val, nil
}

// CallRead runs a read operation under timeout+retry only. Reads bypass the
// idempotency cache entirely.
func CallRead[T any](ctx context.Context, c *Caller, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg := c.cfg.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = RetryLogger(operation)
	}

	return DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		if c.breaker != nil {
			return ExecuteVal(attemptCtx, c.breaker, fn)
		}
		return fn(attemptCtx)
	})
}
