package sqlstore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaVersion is bumped when the DDL below changes shape. Migration is
// idempotent: a persisted marker row makes re-running it a no-op, so it
// is safe to invoke on every process start.
const schemaVersion = 1

// openDB opens the SQLite database at path. Connections are opened per
// call and closed when the call finishes, so no lock leaks across calls.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writers on one connection pool.
	db.SetMaxOpenConns(1)

	pragmas := `
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA busy_timeout=30000;
		PRAGMA foreign_keys=ON;
	`
	if _, err := db.Exec(pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring connection: %w", err)
	}
	return db, nil
}

// migrate applies the schema once. The schema_migrations marker table
// records applied versions; running twice yields identical schema and
// row state as running once.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var applied int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, schemaVersion,
	).Scan(&applied)
	if err != nil {
		return fmt.Errorf("checking migration marker: %w", err)
	}
	if applied > 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration: %w", err)
	}
	defer tx.Rollback()

	schema := `
		CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS memory_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			title TEXT,
			category TEXT,
			summary TEXT NOT NULL DEFAULT '',
			keywords TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_entries_project ON memory_entries(project_id);
		CREATE INDEX IF NOT EXISTS idx_entries_category ON memory_entries(category);
		CREATE INDEX IF NOT EXISTS idx_entries_created ON memory_entries(created_at);

		-- Trigram tokenization so substring and partial matches work for
		-- scripts without whitespace-delimited words.
		CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
			title,
			summary,
			body,
			content='memory_entries',
			content_rowid='id',
			tokenize='trigram'
		);

		CREATE TRIGGER IF NOT EXISTS memory_fts_ai AFTER INSERT ON memory_entries BEGIN
			INSERT INTO memory_fts(rowid, title, summary, body)
			VALUES (new.id, COALESCE(new.title, ''), new.summary, new.body);
		END;

		CREATE TRIGGER IF NOT EXISTS memory_fts_ad AFTER DELETE ON memory_entries BEGIN
			INSERT INTO memory_fts(memory_fts, rowid, title, summary, body)
			VALUES ('delete', old.id, COALESCE(old.title, ''), old.summary, old.body);
		END;

		CREATE TRIGGER IF NOT EXISTS memory_fts_au AFTER UPDATE ON memory_entries BEGIN
			INSERT INTO memory_fts(memory_fts, rowid, title, summary, body)
			VALUES ('delete', old.id, COALESCE(old.title, ''), old.summary, old.body);
			INSERT INTO memory_fts(rowid, title, summary, body)
			VALUES (new.id, COALESCE(new.title, ''), new.summary, new.body);
		END;
	`
	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))`,
		schemaVersion,
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	return nil
}

// migrated reports whether the current schema version marker is present.
func migrated(db *sql.DB) (bool, error) {
	var n int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, schemaVersion,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
