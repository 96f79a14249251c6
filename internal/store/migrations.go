package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/albert-ai/loopguard/pkg/schema"
)

// Migration files are named NNN_name.sql and applied in version order.
//
//go:embed migrations/*.sql
var migrationFiles embed.FS

type migration struct {
	version int
	name    string
	script  string
}

// loadMigrations reads the embedded migration scripts.
func loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}

	var out []migration
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), ".sql")
		if !ok {
			continue
		}
		num, name, ok := strings.Cut(base, "_")
		version, err := strconv.Atoi(num)
		if !ok || err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: want NNN_name.sql", e.Name())
		}
		if n := len(out); n > 0 && out[n-1].version >= version {
			return nil, fmt.Errorf("migration %s: version %d is not after %d", e.Name(), version, out[n-1].version)
		}
		script, err := migrationFiles.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, migration{version: version, name: name, script: string(script)})
	}
	return out, nil
}

func migrationError(op string, err error) error {
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %v", op, err).WithCause(err)
}

// schemaVersion is the highest applied migration, 0 on a fresh database.
func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM loopguard_schema`).Scan(&v)
	return v, err
}

// runMigrations applies every migration newer than the recorded schema
// version, each in its own transaction.
func runMigrations(ctx context.Context, db *sql.DB, ms []migration) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS loopguard_schema (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return migrationError("create loopguard_schema", err)
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return migrationError("read schema version", err)
	}

	for _, m := range ms {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return migrationError(fmt.Sprintf("migration %03d_%s", m.version, m.name), err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range splitStatements(m.script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO loopguard_schema (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
		return err
	}
	return tx.Commit()
}

// splitStatements splits a script on semicolons and drops fragments that
// hold only comments.
func splitStatements(script string) []string {
	var stmts []string
	for raw := range strings.SplitSeq(script, ";") {
		s := strings.TrimSpace(raw)
		if s != "" && hasSQL(s) {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

func hasSQL(fragment string) bool {
	for line := range strings.Lines(fragment) {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return true
		}
	}
	return false
}
