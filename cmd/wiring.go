package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/recon-cli/internal/recon"
	"github.com/sells-group/recon-cli/internal/resilience"
	"github.com/sells-group/recon-cli/internal/store"
	"github.com/sells-group/recon-cli/pkg/ledger"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "recon.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initLedger() (ledger.Client, error) {
	if cfg.Ledger.Key == "" {
		return nil, eris.New("ledger API key is required (RECON_LEDGER_KEY)")
	}
	return ledger.NewClient(cfg.Ledger.Key, ledger.WithBaseURL(cfg.Ledger.BaseURL)), nil
}

// newCaller builds the resilient call wrapper from config: per-attempt
// timeout, classified retry, circuit breaker, and the given idempotency cache.
func newCaller(cache resilience.IdempotencyCache) *resilience.Caller {
	callerCfg := resilience.CallerConfig{
		Timeout:  time.Duration(cfg.Sync.TimeoutSecs) * time.Second,
		Retry:    resilience.FromRetryConfig(cfg.Retry.MaxRetries, cfg.Retry.BaseDelayMs, cfg.Retry.MaxDelayMs, cfg.Retry.JitterFraction),
		CacheTTL: time.Duration(cfg.Cache.TTLHours) * time.Hour,
	}
	breaker := resilience.NewCircuitBreaker(
		resilience.FromCircuitConfig(cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeoutSecs),
	)
	return resilience.NewCaller(callerCfg, cache, resilience.WithBreaker(breaker))
}

func matchConfig() recon.MatchConfig {
	return recon.MatchConfig{
		AmountTolerance: cfg.Match.AmountTolerance,
		RequireSameDate: cfg.Match.RequireSameDate,
		MinSimilarity:   cfg.Match.MinSimilarity,
	}
}

func planConfig() recon.PlanConfig {
	return recon.PlanConfig{
		MinAmount:       cfg.Plan.MinAmount,
		MaxAutoSync:     cfg.Plan.MaxAutoSync,
		DefaultCategory: cfg.Plan.DefaultCategory,
		RequireDate:     cfg.Plan.RequireDate,
		DuplicateCheck:  cfg.Plan.DuplicateCheck,
	}
}

// printOutput writes v to stdout as indented JSON or YAML.
func printOutput(v any, format string) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(v), "encode json output")
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return eris.Wrap(enc.Encode(v), "encode yaml output")
	default:
		return eris.Errorf("unsupported output format: %s", format)
	}
}
