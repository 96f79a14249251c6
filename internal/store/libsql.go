package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/albert-ai/loopguard/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/loopguard.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	ms, err := loadMigrations()
	if err != nil {
		return migrationError("load migrations", err)
	}
	return runMigrations(ctx, s.db, ms)
}

// SchemaVersion reports the highest applied migration.
func (s *LibSQLStore) SchemaVersion(ctx context.Context) (int, error) {
	v, err := schemaVersion(ctx, s.db)
	if err != nil {
		return 0, migrationError("read schema version", err)
	}
	return v, nil
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Loop runs ---

const loopRunColumns = `id, workflow_id, nodes, entry_node, exit_node, max_iterations, timeout_ms, exit_conditions, status, exit_reason, exit_kind, iterations, started_at, completed_at, updated_at`

func (s *LibSQLStore) CreateLoopRun(ctx context.Context, run *LoopRun) error {
	nodes, err := json.Marshal(nonNilStrings(run.Nodes))
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	conds := run.ExitConditions
	if conds == nil {
		conds = []schema.LoopExitCondition{}
	}
	condJSON, err := json.Marshal(conds)
	if err != nil {
		return fmt.Errorf("marshal exit conditions: %w", err)
	}
	status := run.Status
	if status == "" {
		status = schema.LoopStatusRunning
	}
	started := timeOrNow(run.StartedAt)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO loop_runs (`+loopRunColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, nullStr(run.WorkflowID), string(nodes), run.EntryNode, run.ExitNode,
		run.MaxIterations, run.TimeoutMs, string(condJSON), string(status),
		nullStr(run.ExitReason), nullStr(string(run.ExitKind)), run.Iterations,
		started, nullTime(run.CompletedAt), timeOrNow(run.UpdatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return schema.NewErrorf(schema.ErrCodeConflict, "loop run %q already exists", run.ID).WithCause(err)
	}
	return err
}

func (s *LibSQLStore) GetLoopRun(ctx context.Context, id string) (*LoopRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+loopRunColumns+` FROM loop_runs WHERE id = ?`, id)
	run, err := scanLoopRun(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("loop run", id)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *LibSQLStore) ListLoopRuns(ctx context.Context, filter LoopRunFilter) ([]*LoopRun, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, *filter.Since)
	}

	query := "SELECT " + loopRunColumns + " FROM loop_runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*LoopRun
	for rows.Next() {
		run, err := scanLoopRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *LibSQLStore) CompleteLoopRun(ctx context.Context, id string, c LoopRunCompletion) error {
	if !c.Status.IsTerminal() {
		return schema.NewErrorf(schema.ErrCodeValidation, "cannot complete loop run with status %q", c.Status)
	}
	at := timeOrNow(c.At)
	res, err := s.db.ExecContext(ctx,
		`UPDATE loop_runs SET status = ?, exit_reason = ?, exit_kind = ?, iterations = ?, completed_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(c.Status), nullStr(c.ExitReason), nullStr(string(c.ExitKind)), c.Iterations, at, at, id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "loop run", id)
}

// PurgeLoopRuns deletes finished runs completed before the cutoff, with their iterations.
func (s *LibSQLStore) PurgeLoopRuns(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM loop_iterations WHERE loop_id IN (
			SELECT id FROM loop_runs WHERE status != ? AND completed_at IS NOT NULL AND completed_at < ?)`,
		string(schema.LoopStatusRunning), before.UTC(),
	); err != nil {
		return 0, fmt.Errorf("purge iterations: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM loop_runs WHERE status != ? AND completed_at IS NOT NULL AND completed_at < ?`,
		string(schema.LoopStatusRunning), before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge loop runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// --- Iterations ---

func (s *LibSQLStore) AppendIteration(ctx context.Context, it *Iteration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	created := timeOrNow(it.CreatedAt)
	res, err := tx.ExecContext(ctx,
		`UPDATE loop_runs SET iterations = MAX(iterations, ?), updated_at = ? WHERE id = ?`,
		it.Iteration, created, it.LoopID,
	)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res, "loop run", it.LoopID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO loop_iterations (loop_id, iteration, output, similarity, change_rate, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		it.LoopID, it.Iteration, it.Output, it.Similarity, it.ChangeRate, created,
	); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return schema.NewErrorf(schema.ErrCodeConflict, "iteration %d already recorded", it.Iteration).
				WithLoop(it.LoopID).WithCause(err)
		}
		return err
	}
	return tx.Commit()
}

func (s *LibSQLStore) ListIterations(ctx context.Context, loopID string) ([]*Iteration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT loop_id, iteration, output, similarity, change_rate, created_at
		 FROM loop_iterations WHERE loop_id = ? ORDER BY iteration`, loopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var its []*Iteration
	for rows.Next() {
		it := &Iteration{}
		if err := rows.Scan(&it.LoopID, &it.Iteration, &it.Output, &it.Similarity, &it.ChangeRate, &it.CreatedAt); err != nil {
			return nil, err
		}
		its = append(its, it)
	}
	return its, rows.Err()
}

// --- Helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoopRun(row rowScanner) (*LoopRun, error) {
	run := &LoopRun{}
	var (
		workflowID, exitReason, exitKind sql.NullString
		nodesJSON, condJSON, status      string
		completedAt                      sql.NullTime
	)
	if err := row.Scan(&run.ID, &workflowID, &nodesJSON, &run.EntryNode, &run.ExitNode,
		&run.MaxIterations, &run.TimeoutMs, &condJSON, &status, &exitReason, &exitKind,
		&run.Iterations, &run.StartedAt, &completedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.WorkflowID = workflowID.String
	run.ExitReason = exitReason.String
	run.ExitKind = schema.ExitKind(exitKind.String)
	run.Status = schema.LoopStatus(status)
	if err := json.Unmarshal([]byte(nodesJSON), &run.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal([]byte(condJSON), &run.ExitConditions); err != nil {
		return nil, fmt.Errorf("unmarshal exit conditions: %w", err)
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

func storeNotFound(resource, id string) *schema.LoopguardError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
