package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recon-cli/internal/db"
	"github.com/sells-group/recon-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":          `INSERT INTO recon_runs (id, mode, identity, status, plan_summary, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"complete_run":        `UPDATE recon_runs SET status = $1, sync_summary = $2, updated_at = $3 WHERE id = $4`,
	"get_run":             `SELECT id, mode, identity, status, plan_summary, sync_summary, created_at, updated_at FROM recon_runs WHERE id = $1`,
	"get_idempotency":     `SELECT result FROM idempotency WHERE key = $1 AND expires_at > now()`,
	"put_idempotency":     `INSERT INTO idempotency (key, result, created_at, expires_at) VALUES ($1, $2, $3, $4) ON CONFLICT (key) DO UPDATE SET result = EXCLUDED.result, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
	"delete_expired_idem": `DELETE FROM idempotency WHERE expires_at <= now()`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS recon_runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	mode         TEXT NOT NULL,
	identity     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	plan_summary JSONB,
	sync_summary JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_actions (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES recon_runs(id),
	status     TEXT NOT NULL,
	record_id  TEXT,
	error      TEXT,
	action     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS idempotency (
	key        TEXT PRIMARY KEY,
	result     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recon_runs_status ON recon_runs(status);
CREATE INDEX IF NOT EXISTS idx_recon_runs_identity ON recon_runs(identity);
CREATE INDEX IF NOT EXISTS idx_run_actions_run_id ON run_actions(run_id);
CREATE INDEX IF NOT EXISTS idx_idempotency_expires_at ON idempotency(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, mode, identity string, plan model.PlanSummary) (*model.ReconRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal plan summary")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO recon_runs (id, mode, identity, status, plan_summary, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, mode, identity, string(model.RunStatusRunning), planJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.ReconRun{
		ID:        id,
		Mode:      mode,
		Identity:  identity,
		Status:    model.RunStatusRunning,
		Plan:      &plan,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.SyncSummary) error {
	var summaryJSON []byte
	if summary != nil {
		var err error
		summaryJSON, err = json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal sync summary")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE recon_runs SET status = $1, sync_summary = $2, updated_at = $3 WHERE id = $4`,
		string(status), summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.ReconRun, error) {
	var run model.ReconRun
	var planJSON, summaryJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, mode, identity, status, plan_summary, sync_summary, created_at, updated_at FROM recon_runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.Mode, &run.Identity, &run.Status, &planJSON, &summaryJSON, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if len(planJSON) > 0 {
		var plan model.PlanSummary
		if err := json.Unmarshal(planJSON, &plan); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal plan summary")
		}
		run.Plan = &plan
	}
	if len(summaryJSON) > 0 {
		var summary model.SyncSummary
		if err := json.Unmarshal(summaryJSON, &summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal sync summary")
		}
		run.Summary = &summary
	}
	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ReconRun, error) {
	query := `SELECT id, mode, identity, status, plan_summary, sync_summary, created_at, updated_at FROM recon_runs`
	var args []any
	argN := 1
	if filter.Status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argN)
		args = append(args, string(filter.Status))
		argN++
	}
	if filter.Identity != "" {
		if argN == 1 {
			query += fmt.Sprintf(" WHERE identity = $%d", argN)
		} else {
			query += fmt.Sprintf(" AND identity = $%d", argN)
		}
		args = append(args, filter.Identity)
		argN++
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", argN)
	args = append(args, limit)
	argN++
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argN)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.ReconRun
	for rows.Next() {
		var run model.ReconRun
		var planJSON, summaryJSON []byte
		if err := rows.Scan(&run.ID, &run.Mode, &run.Identity, &run.Status, &planJSON, &summaryJSON, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(planJSON) > 0 {
			var plan model.PlanSummary
			if err := json.Unmarshal(planJSON, &plan); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal plan summary")
			}
			run.Plan = &plan
		}
		if len(summaryJSON) > 0 {
			var summary model.SyncSummary
			if err := json.Unmarshal(summaryJSON, &summary); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal sync summary")
			}
			run.Summary = &summary
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

// SaveOutcomes bulk-inserts per-action audit rows via the COPY protocol.
func (s *PostgresStore) SaveOutcomes(ctx context.Context, runID string, outcomes []model.ActionOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(outcomes))
	for _, outcome := range outcomes {
		actionJSON, err := json.Marshal(outcome.Action)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal action")
		}
		rows = append(rows, []any{
			uuid.New().String(), runID, string(outcome.Status), outcome.RecordID, outcome.Error, actionJSON, now,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "run_actions",
		[]string{"id", "run_id", "status", "record_id", "error", "action", "created_at"}, rows)
	return err
}

func (s *PostgresStore) GetIdempotency(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var result []byte
	err := s.pool.QueryRow(ctx,
		`SELECT result FROM idempotency WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&result)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "postgres: get idempotency")
	}
	return json.RawMessage(result), true, nil
}

func (s *PostgresStore) PutIdempotency(ctx context.Context, key string, result json.RawMessage, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO idempotency (key, result, created_at, expires_at) VALUES ($1, $2, $3, $4) ON CONFLICT (key) DO UPDATE SET result = EXCLUDED.result, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
		key, []byte(result), now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: put idempotency")
}

func (s *PostgresStore) DeleteExpiredIdempotency(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired idempotency")
	}
	return int(tag.RowsAffected()), nil
}
