// Package migrate applies embedded SQL migration files and records them in a
// schema_migrations table.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// Dialect holds the backend specific SQL used by the runner.
type Dialect struct {
	// CreateTable creates schema_migrations if missing. applied_at must have a default.
	CreateTable string
	// Record inserts one version, bound to a single parameter.
	Record string
	// SplitStatements runs files statement by statement outside a transaction.
	// Needed when the driver rejects multi-statement Exec or DDL commits implicitly.
	SplitStatements bool
}

var (
	SQLite = Dialect{
		CreateTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`,
		Record: "INSERT INTO schema_migrations (version) VALUES (?)",
	}
	Postgres = Dialect{
		CreateTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		Record: "INSERT INTO schema_migrations (version) VALUES ($1)",
	}
	MariaDB = Dialect{
		CreateTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6)
		)`,
		Record:          "INSERT INTO schema_migrations (version) VALUES (?)",
		SplitStatements: true,
	}
)

// Apply runs every *.sql file in fsys that is not recorded yet, in name order,
// and returns the versions it applied.
func Apply(ctx context.Context, db *sql.DB, fsys fs.FS, d Dialect) ([]string, error) {
	if _, err := db.ExecContext(ctx, d.CreateTable); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := Applied(ctx, db)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	pending, err := pendingFiles(fsys, done)
	if err != nil {
		return nil, err
	}

	for _, file := range pending {
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}
		if d.SplitStatements {
			err = applySplit(ctx, db, d, file, string(content))
		} else {
			err = applyInTx(ctx, db, d, file, string(content))
		}
		if err != nil {
			return nil, err
		}
	}
	return pending, nil
}

func pendingFiles(fsys fs.FS, done map[string]bool) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") && !done[e.Name()] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func applyInTx(ctx context.Context, db *sql.DB, d Dialect, file, content string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for %s: %w", file, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, content); err != nil {
		return fmt.Errorf("execute migration %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, d.Record, file); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file, err)
	}
	return nil
}

func applySplit(ctx context.Context, db *sql.DB, d Dialect, file, content string) error {
	for _, stmt := range SplitStatements(content) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
	}
	if _, err := db.ExecContext(ctx, d.Record, file); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	return nil
}

// SplitStatements breaks a migration file on semicolons and drops empty parts.
// Migration files must not contain semicolons inside literals.
func SplitStatements(content string) []string {
	var stmts []string
	for part := range strings.SplitSeq(content, ";") {
		if s := strings.TrimSpace(part); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// Applied returns the recorded versions in order.
func Applied(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}
	return versions, nil
}
