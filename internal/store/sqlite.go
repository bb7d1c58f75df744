package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/recon-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS recon_runs (
	id           TEXT PRIMARY KEY,
	mode         TEXT NOT NULL,
	identity     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	plan_summary TEXT,
	sync_summary TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_actions (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES recon_runs(id),
	status     TEXT NOT NULL,
	record_id  TEXT,
	error      TEXT,
	action     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS idempotency (
	key        TEXT PRIMARY KEY,
	result     TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recon_runs_status ON recon_runs(status);
CREATE INDEX IF NOT EXISTS idx_recon_runs_identity ON recon_runs(identity);
CREATE INDEX IF NOT EXISTS idx_run_actions_run_id ON run_actions(run_id);
CREATE INDEX IF NOT EXISTS idx_idempotency_expires_at ON idempotency(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, mode, identity string, plan model.PlanSummary) (*model.ReconRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal plan summary")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recon_runs (id, mode, identity, status, plan_summary, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, mode, identity, string(model.RunStatusRunning), string(planJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.SyncSummary) error {
	var summaryJSON []byte
	if summary != nil {
		var err error
		summaryJSON, err = json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal sync summary")
		}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE recon_runs SET status = ?, sync_summary = ?, updated_at = ? WHERE id = ?`,
		string(status), nullString(summaryJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.ReconRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, mode, identity, status, plan_summary, sync_summary, created_at, updated_at FROM recon_runs WHERE id = ?`,
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Errorf("sqlite: run %s not found", runID)
		}
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.ReconRun, error) {
	query := `SELECT id, mode, identity, status, plan_summary, sync_summary, created_at, updated_at FROM recon_runs`
	var args []any
	var where []string
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Identity != "" {
		where = append(where, "identity = ?")
		args = append(args, filter.Identity)
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.ReconRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) SaveOutcomes(ctx context.Context, runID string, outcomes []model.ActionOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save outcomes")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_actions (id, run_id, status, record_id, error, action, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare save outcomes")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, outcome := range outcomes {
		actionJSON, err := json.Marshal(outcome.Action)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal action")
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), runID, string(outcome.Status), outcome.RecordID, outcome.Error, string(actionJSON), now,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert outcome")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit outcomes")
}

func (s *SQLiteStore) GetIdempotency(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var result string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT result, expires_at FROM idempotency WHERE key = ?`,
		key,
	).Scan(&result, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get idempotency")
	}

	// Lazy expiry: evict on access rather than via a background sweep.
	if !time.Now().UTC().Before(expiresAt) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM idempotency WHERE key = ?`, key); err != nil {
			return nil, false, eris.Wrap(err, "sqlite: evict expired idempotency")
		}
		return nil, false, nil
	}
	return json.RawMessage(result), true, nil
}

func (s *SQLiteStore) PutIdempotency(ctx context.Context, key string, result json.RawMessage, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency (key, result, created_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET result = excluded.result, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, string(result), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: put idempotency")
}

func (s *SQLiteStore) DeleteExpiredIdempotency(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM idempotency WHERE expires_at <= ?`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired idempotency")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.ReconRun, error) {
	var run model.ReconRun
	var planJSON, summaryJSON sql.NullString
	if err := row.Scan(&run.ID, &run.Mode, &run.Identity, &run.Status, &planJSON, &summaryJSON, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	if planJSON.Valid && planJSON.String != "" {
		var plan model.PlanSummary
		if err := json.Unmarshal([]byte(planJSON.String), &plan); err != nil {
			return nil, eris.Wrap(err, "unmarshal plan summary")
		}
		run.Plan = &plan
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		var summary model.SyncSummary
		if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err != nil {
			return nil, eris.Wrap(err, "unmarshal sync summary")
		}
		run.Summary = &summary
	}
	return &run, nil
}

func nullString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", kind, id)
	}
	return nil
}
