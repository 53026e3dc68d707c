package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		street TEXT,
		city TEXT,
		state TEXT,
		zip TEXT,
		phone TEXT,
		email TEXT,
		ssn TEXT,
		date_of_birth INTEGER,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS disputes (
		id TEXT PRIMARY KEY,
		reference TEXT,
		batch_id TEXT,
		client_id TEXT NOT NULL,
		template_id TEXT NOT NULL,
		type TEXT NOT NULL,
		priority TEXT NOT NULL,
		bureau TEXT NOT NULL,
		reason TEXT,
		description TEXT,
		due_date INTEGER,
		subject TEXT NOT NULL,
		letter_content TEXT NOT NULL,
		account_numbers TEXT NOT NULL,
		account_key TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(client_id, bureau, account_key)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_disputes_batch ON disputes(batch_id);`,
	`CREATE INDEX IF NOT EXISTS idx_disputes_client ON disputes(client_id);`,
	`CREATE TABLE IF NOT EXISTS batch_runs (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		status TEXT NOT NULL,
		total INTEGER NOT NULL,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);`,
	`CREATE TABLE IF NOT EXISTS batch_items (
		batch_id TEXT NOT NULL,
		client_id TEXT NOT NULL,
		status TEXT NOT NULL,
		dispute_ids TEXT NOT NULL,
		bureaus TEXT NOT NULL,
		duplicate INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		error_code TEXT,
		completed_at INTEGER NOT NULL,
		PRIMARY KEY(batch_id, client_id)
	);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	// Templates gained an optional bureau scope after the first release.
	if err := s.ensureColumn(ctx, "templates", "bureau", "TEXT"); err != nil {
		return err
	}
	if err := s.ensureColumn(ctx, "batch_items", "warnings", "TEXT"); err != nil {
		return err
	}

	return nil
}

func (s *Store) ensureColumn(ctx context.Context, table, column, columnDef string) error {
	exists, err := s.hasColumn(ctx, table, column)
	if err != nil || exists {
		return err
	}

	if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, columnDef)); err != nil {
		return fmt.Errorf("add %s.%s column: %w", table, column, err)
	}

	return nil
}

// hasColumn releases its rows before returning; local stores run on a
// single connection.
func (s *Store) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("inspect %s schema: %w", table, err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("inspect %s columns: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("inspect %s columns: %w", table, err)
	}
	return false, nil
}
